package bfl

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"xchg/config"
	"xchg/pkg/apierr"
	"xchg/pkg/http"
	"xchg/pkg/market"
	"xchg/pkg/order"
	"xchg/pkg/signer"
	"xchg/pkg/types"
	"xchg/pkg/utils"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseUrl = "https://api.bitflyer.com"
	// bitFlyer pages getchildorders at 100 unless count is given
	openOrdersCount = math.MaxInt32
)

var authScheme = signer.Scheme{
	Hash:              signer.HashSHA256,
	SecretEncoding:    signer.EncodingBase64,
	SignatureEncoding: signer.EncodingBase64,
	Timestamp:         signer.TimestampSeconds,
	KeyHeader:         "ACCESS-KEY",
	SignHeader:        "ACCESS-SIGN",
	TimestampHeader:   "ACCESS-TIMESTAMP",
}

type BflExchange struct {
	baseUrl string

	// mu guards signer; Close swaps it out under the write lock
	mu        sync.RWMutex
	signer    *signer.Signer
	transport *http.Transport

	// percent overrides from config, as fractions
	buyFee  decimal.NullDecimal
	sellFee decimal.NullDecimal
}

type Option func(*options)

type options struct {
	client     *nethttp.Client
	signerOpts []signer.Option
}

// WithHttpClient injects the client the transport sends through.
func WithHttpClient(client *nethttp.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

func WithSignerOptions(opts ...signer.Option) Option {
	return func(o *options) {
		o.signerOpts = append(o.signerOpts, opts...)
	}
}

func New(exchgConfig *config.ExchangeConfig, opts ...Option) (*BflExchange, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	// (1) credentials
	creds, err := exchgConfig.Credentials()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInitialization, string(types.ExchangeBfl), "init", err)
	}
	s, err := signer.New(creds, authScheme, o.signerOpts...)
	if err != nil {
		return nil, apierr.WithOp(err, string(types.ExchangeBfl), "init")
	}

	// (2) optional items
	e := &BflExchange{
		baseUrl: defaultBaseUrl,
		signer:  s,
	}
	if baseUrl, ok := exchgConfig.OptionalItem(config.OptionalBaseUrl); ok {
		e.baseUrl = strings.TrimSuffix(baseUrl, "/")
	}
	if e.buyFee, err = loadFee(exchgConfig, config.OptionalBuyFee); err != nil {
		return nil, err
	}
	if e.sellFee, err = loadFee(exchgConfig, config.OptionalSellFee); err != nil {
		return nil, err
	}

	// (3) transport
	e.transport = http.NewTransport(o.client, exchgConfig.Network.RetryPolicy())
	return e, nil
}

func loadFee(exchgConfig *config.ExchangeConfig, key string) (decimal.NullDecimal, error) {
	v, ok := exchgConfig.OptionalItem(key)
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	fee, err := utils.PercentToFraction(v)
	if err != nil {
		return decimal.NullDecimal{}, apierr.Wrap(apierr.KindInitialization, string(types.ExchangeBfl), "init", err)
	}
	return decimal.NewNullDecimal(fee), nil
}

func (e *BflExchange) Name() types.ExchangeName {
	return types.ExchangeBfl
}

func (e *BflExchange) ImplName() string {
	return "bitFlyer Lightning"
}

func (e *BflExchange) State() types.AdapterState {
	if e == nil {
		return types.AdapterUninitialized
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.signer == nil || e.transport == nil {
		return types.AdapterUninitialized
	}
	return types.AdapterReady
}

// Close wipes the key material once no request is being signed. Calls made
// afterwards fail with ErrNotInitialized.
func (e *BflExchange) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signer.Wipe()
	e.signer = nil
}

// ╔═════════════╗
//     Market
// ╚═════════════╝

func (e *BflExchange) GetMarketOrders(ctx context.Context, marketId string) (*market.MarketOrderBook, error) {
	const op = "getMarketOrders"
	res, err := e.send(ctx, op, "GET", "/v1/getboard", productQuery(marketId), nil, false)
	if err != nil {
		return nil, err
	}
	return parseOrderBook(marketId, res.Body)
}

func (e *BflExchange) GetLatestMarketPrice(ctx context.Context, marketId string) (decimal.Decimal, error) {
	const op = "getLatestMarketPrice"
	res, err := e.send(ctx, op, "GET", "/v1/getticker", productQuery(marketId), nil, false)
	if err != nil {
		return decimal.Zero, err
	}
	return parseBestBid(res.Body)
}

// ╔═════════════╗
//      Order
// ╚═════════════╝

func (e *BflExchange) GetYourOpenOrders(ctx context.Context, marketId string) ([]order.OpenOrder, error) {
	const op = "getYourOpenOrders"
	query := productQuery(marketId)
	query.Set("child_order_state", "ACTIVE")
	query.Set("count", strconv.Itoa(openOrdersCount))
	res, err := e.send(ctx, op, "GET", "/v1/me/getchildorders", query, nil, true)
	if err != nil {
		return nil, err
	}
	return parseOpenOrders(res.Body)
}

// CreateOrder places a GTC limit order and returns its acceptance id. It is
// sent once: bitFlyer has no client order id to deduplicate a resend.
func (e *BflExchange) CreateOrder(ctx context.Context, marketId string, side types.OrderSide, quantity decimal.Decimal, price decimal.Decimal) (string, error) {
	const op = "createOrder"
	orderSide, err := convertOrderSide(side)
	if err != nil {
		return "", apierr.New(apierr.KindRejected, string(types.ExchangeBfl), op, "%v", err)
	}
	req := sendChildOrderRequest{
		ProductCode:    marketId,
		ChildOrderType: string(types.OrderLimit),
		Side:           orderSide,
		Price:          convertDecimal(price),
		Size:           convertDecimal(quantity),
		TimeInForce:    string(types.OrderTIFGTC),
	}
	log.WithFields(log.Fields{
		"exchange": types.ExchangeBfl,
		"market":   marketId,
		"side":     side,
		"price":    price,
		"qty":      quantity,
	}).Info("creating order")

	res, err := e.send(ctx, op, "POST", "/v1/me/sendchildorder", nil, req, true)
	if err != nil {
		return "", err
	}
	return parseOrderId(res.Body)
}

// CancelOrder returns false when bitFlyer no longer knows the order.
func (e *BflExchange) CancelOrder(ctx context.Context, orderId string, marketId string) (bool, error) {
	const op = "cancelOrder"
	req := cancelChildOrderRequest{
		ProductCode:            marketId,
		ChildOrderAcceptanceId: orderId,
	}
	_, err := e.send(ctx, op, "POST", "/v1/me/cancelchildorder", nil, req, true)
	if err != nil {
		if isOrderNotFound(err) {
			log.WithFields(log.Fields{"exchange": types.ExchangeBfl, "order": orderId}).Info("order already gone")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isOrderNotFound(err error) bool {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindRejected {
		return false
	}
	return apiErr.StatusCode == nethttp.StatusNotFound || strings.Contains(strings.ToLower(apiErr.Message), "not found")
}

// ╔═════════════╗
//     Account
// ╚═════════════╝

func (e *BflExchange) GetBalanceInfo(ctx context.Context) (*types.BalanceInfo, error) {
	const op = "getBalanceInfo"
	res, err := e.send(ctx, op, "GET", "/v1/me/getbalance", nil, nil, true)
	if err != nil {
		return nil, err
	}
	return parseBalanceInfo(res.Body)
}

func (e *BflExchange) GetPercentageOfBuyOrderTakenForExchangeFee(ctx context.Context, marketId string) (decimal.Decimal, error) {
	if e.State() == types.AdapterReady && e.buyFee.Valid {
		return e.buyFee.Decimal, nil
	}
	return e.getTradingCommission(ctx, marketId)
}

func (e *BflExchange) GetPercentageOfSellOrderTakenForExchangeFee(ctx context.Context, marketId string) (decimal.Decimal, error) {
	if e.State() == types.AdapterReady && e.sellFee.Valid {
		return e.sellFee.Decimal, nil
	}
	return e.getTradingCommission(ctx, marketId)
}

func (e *BflExchange) getTradingCommission(ctx context.Context, marketId string) (decimal.Decimal, error) {
	const op = "getTradingCommission"
	res, err := e.send(ctx, op, "GET", "/v1/me/gettradingcommission", productQuery(marketId), nil, true)
	if err != nil {
		return decimal.Zero, err
	}
	return parseCommissionRate(res.Body)
}

// ╔═════════════╗
//     Request
// ╚═════════════╝

func productQuery(marketId string) url.Values {
	return url.Values{"product_code": []string{marketId}}
}

// send signs private requests, runs them through the transport and turns
// non-2xx answers into typed errors. Only GETs are retried.
func (e *BflExchange) send(ctx context.Context, op string, method string, path string, query url.Values, body any, private bool) (*http.Response, error) {
	if e.State() != types.AdapterReady {
		return nil, apierr.New(apierr.KindNotInitialized, string(types.ExchangeBfl), op, "adapter is not initialized")
	}

	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var reqBody string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindRejected, string(types.ExchangeBfl), op, err)
		}
		reqBody = string(b)
	}
	headers, ok := e.sign(method, path, reqBody, private)
	if !ok {
		return nil, apierr.New(apierr.KindNotInitialized, string(types.ExchangeBfl), op, "adapter is closed")
	}

	res, err := e.transport.Do(ctx, http.Request{
		Method:    method,
		Url:       e.baseUrl + path,
		Body:      reqBody,
		Headers:   headers,
		Retryable: method == "GET",
	})
	if err != nil {
		return nil, apierr.WithOp(err, string(types.ExchangeBfl), op)
	}
	if !res.IsSuccess() {
		return nil, classifyError(op, res)
	}
	return res, nil
}

// sign reports false when Close has already wiped the signer.
func (e *BflExchange) sign(method string, path string, body string, private bool) (map[string]string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.signer == nil {
		return nil, false
	}
	if !private {
		return nil, true
	}
	return e.signer.Headers(method, path, body), true
}

func classifyError(op string, res *http.Response) error {
	apiErr := &apierr.Error{
		Kind:       apierr.KindRejected,
		Exchange:   string(types.ExchangeBfl),
		Op:         op,
		StatusCode: res.StatusCode,
	}
	errRes, ok := parseErrorResponse(res.Body)
	if ok {
		apiErr.Message = errRes.ErrorMessage
		if errRes.Status != nil {
			apiErr.Code = strconv.Itoa(*errRes.Status)
		}
	} else {
		apiErr.Message = res.Status
	}

	switch {
	case res.StatusCode == nethttp.StatusUnauthorized || res.StatusCode == nethttp.StatusForbidden:
		apiErr.Kind = apierr.KindAuthentication
	case res.StatusCode >= 500 && !ok:
		apiErr.Kind = apierr.KindNetwork
	}
	return apiErr
}
