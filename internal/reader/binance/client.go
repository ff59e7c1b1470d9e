package binance

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	spot "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	futures "github.com/adshao/go-binance/v2/futures"

	"github.com/DIY-6/web3-script/internal/reader"
	"github.com/DIY-6/web3-script/logger"
)

const (
	source       = "binance"
	weightHeader = "X-MBX-USED-WEIGHT-1m"
	// weightWarnRatio is the share of the per-minute request weight above
	// which usage is logged at warn level.
	weightWarnRatio = 0.8
)

// Endpoints are the REST base URLs of the futures and spot APIs.
type Endpoints struct {
	FuturesURL string
	SpotURL    string
}

// Client bundles the go-binance SDK clients with a gjson based REST helper
// for the endpoints the SDK decodes too strictly. All of them share one
// rate limited *http.Client.
type Client struct {
	rest    *reader.REST
	futures *futures.Client
	spot    *spot.Client
	log     *logger.Log

	weightLimit atomic.Int64
	usedWeight  atomic.Int64
	onWeight    func(used int64)
}

// NewClient creates a Binance client for the given endpoints.
func NewClient(ep Endpoints, httpClient *http.Client) *Client {
	log := logger.GetLogger()

	fc := futures.NewClient("", "")
	fc.HTTPClient = httpClient
	if ep.FuturesURL != "" {
		fc.BaseURL = ep.FuturesURL
	}

	sc := spot.NewClient("", "")
	sc.HTTPClient = httpClient
	if ep.SpotURL != "" {
		sc.BaseURL = ep.SpotURL
	}

	c := &Client{
		rest:    reader.NewREST(source, fc.BaseURL, httpClient),
		futures: fc,
		spot:    sc,
		log:     log,
	}
	c.rest.Observe(c.observeWeight)

	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"futures_url": fc.BaseURL,
		"spot_url":    sc.BaseURL,
	}).Info("binance reader initialized")

	return c
}

// OnUsedWeight registers a callback receiving the used request weight after
// every futures response.
func (c *Client) OnUsedWeight(fn func(used int64)) {
	c.onWeight = fn
}

func (c *Client) observeWeight(_ string, header http.Header) {
	v := header.Get(weightHeader)
	if v == "" {
		return
	}
	used, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return
	}
	c.usedWeight.Store(used)
	if c.onWeight != nil {
		c.onWeight(used)
	}
}

// ReportUsedWeight emits the last seen request weight as a gauge metric and
// warns when it approaches the exchange limit.
func (c *Client) ReportUsedWeight() {
	used := c.usedWeight.Load()
	limit := c.weightLimit.Load()
	l := c.log.WithComponent("binance_reader")
	l.LogMetric("binance_reader", "used_weight", used, "gauge", logger.Fields{"limit": strconv.FormatInt(limit, 10)})
	if limit > 0 && float64(used) >= float64(limit)*weightWarnRatio {
		l.WithFields(logger.Fields{"used_weight": used, "limit": limit}).Warn("request weight close to exchange limit")
	}
}

// sdkError maps an error returned by the go-binance SDK onto the reader
// error taxonomy.
func sdkError(endpoint, symbol string, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &reader.ParseError{Source: source, Endpoint: endpoint, Symbol: symbol, Err: err}
	}
	fe := &reader.FetchError{Source: source, Endpoint: endpoint, Symbol: symbol, Err: err}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fe.Body = apiErr.Message
	}
	return fe
}
