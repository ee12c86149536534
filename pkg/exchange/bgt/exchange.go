package bgt

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/url"
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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const defaultBaseUrl = "https://api.bitget.com"

var authScheme = signer.Scheme{
	Hash:              signer.HashSHA256,
	SecretEncoding:    signer.EncodingRaw,
	SignatureEncoding: signer.EncodingBase64,
	Timestamp:         signer.TimestampMillis,
	KeyHeader:         "ACCESS-KEY",
	SignHeader:        "ACCESS-SIGN",
	TimestampHeader:   "ACCESS-TIMESTAMP",
	PassphraseHeader:  "ACCESS-PASSPHRASE",
}

// ref: https://www.bitget.com/api-doc/common/error-code/restapi
var (
	authErrorCodes     = []string{"40002", "40006", "40008", "40009", "40012", "40037"}
	notFoundErrorCodes = []string{"43001", "40768"}
)

type BgtExchange struct {
	baseUrl   string
	mu        sync.RWMutex
	signer    *signer.Signer
	transport *http.Transport

	buyFee           decimal.NullDecimal
	sellFee          decimal.NullDecimal
	retryCreateOrder bool // Bitget deduplicates by clientOid
	newClientOid     func() string
}

type Option func(*options)

type options struct {
	client       *nethttp.Client
	signerOpts   []signer.Option
	newClientOid func() string
}

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

// WithClientOidGenerator replaces the uuid based clientOid source.
func WithClientOidGenerator(fn func() string) Option {
	return func(o *options) {
		o.newClientOid = fn
	}
}

func New(exchgConfig *config.ExchangeConfig, opts ...Option) (*BgtExchange, error) {
	o := options{newClientOid: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}

	// (1) credentials
	creds, err := exchgConfig.Credentials()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInitialization, string(types.ExchangeBgt), "init", err)
	}
	s, err := signer.New(creds, authScheme, o.signerOpts...)
	if err != nil {
		return nil, apierr.WithOp(err, string(types.ExchangeBgt), "init")
	}

	// (2) optional items
	e := &BgtExchange{
		baseUrl:          defaultBaseUrl,
		signer:           s,
		retryCreateOrder: exchgConfig.OptionalBool(config.OptionalRetryCreateOrder),
		newClientOid:     o.newClientOid,
	}
	if baseUrl, ok := exchgConfig.OptionalItem(config.OptionalBaseUrl); ok {
		e.baseUrl = strings.TrimSuffix(baseUrl, "/")
	}
	for key, fee := range map[string]*decimal.NullDecimal{config.OptionalBuyFee: &e.buyFee, config.OptionalSellFee: &e.sellFee} {
		if v, ok := exchgConfig.OptionalItem(key); ok {
			f, err := utils.PercentToFraction(v)
			if err != nil {
				return nil, apierr.Wrap(apierr.KindInitialization, string(types.ExchangeBgt), "init", err)
			}
			*fee = decimal.NewNullDecimal(f)
		}
	}

	// (3) transport
	e.transport = http.NewTransport(o.client, exchgConfig.Network.RetryPolicy())
	return e, nil
}

func (e *BgtExchange) Name() types.ExchangeName {
	return types.ExchangeBgt
}

func (e *BgtExchange) ImplName() string {
	return "Bitget Spot"
}

func (e *BgtExchange) State() types.AdapterState {
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

// Close waits for requests being signed, then wipes the key material.
func (e *BgtExchange) Close() {
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

func (e *BgtExchange) GetMarketOrders(ctx context.Context, marketId string) (*market.MarketOrderBook, error) {
	query := symbolQuery(marketId)
	query.Set("type", "step0")
	query.Set("limit", "100")
	data, err := e.send(ctx, "getMarketOrders", "GET", "/api/v2/spot/market/orderbook", query, nil, false, true)
	if err != nil {
		return nil, err
	}
	return parseOrderBook(marketId, data)
}

func (e *BgtExchange) GetLatestMarketPrice(ctx context.Context, marketId string) (decimal.Decimal, error) {
	data, err := e.send(ctx, "getLatestMarketPrice", "GET", "/api/v2/spot/market/tickers", symbolQuery(marketId), nil, false, true)
	if err != nil {
		return decimal.Zero, err
	}
	return parseBestBid(marketId, data)
}

// ╔═════════════╗
//      Order
// ╚═════════════╝

func (e *BgtExchange) GetYourOpenOrders(ctx context.Context, marketId string) ([]order.OpenOrder, error) {
	data, err := e.send(ctx, "getYourOpenOrders", "GET", "/api/v2/spot/trade/unfilled-orders", symbolQuery(marketId), nil, true, true)
	if err != nil {
		return nil, err
	}
	return parseOpenOrders(data)
}

// CreateOrder places a GTC limit order tagged with a fresh clientOid. It is
// retried only when retry-create-order is enabled. A retry that hits
// Bitget's duplicate clientOid check resolves the order id of the first
// attempt instead of failing.
func (e *BgtExchange) CreateOrder(ctx context.Context, marketId string, side types.OrderSide, quantity decimal.Decimal, price decimal.Decimal) (string, error) {
	const op = "createOrder"
	orderSide, err := convertOrderSide(side)
	if err != nil {
		return "", apierr.New(apierr.KindRejected, string(types.ExchangeBgt), op, "%v", err)
	}
	force, err := convertOrderTif(types.OrderTIFGTC)
	if err != nil {
		return "", apierr.New(apierr.KindRejected, string(types.ExchangeBgt), op, "%v", err)
	}
	req := placeOrderRequest{
		Symbol:    marketId,
		Side:      orderSide,
		OrderType: strings.ToLower(string(types.OrderLimit)),
		Force:     force,
		Price:     price.String(),
		Size:      quantity.String(),
		ClientOid: e.newClientOid(),
	}
	log.WithFields(log.Fields{
		"exchange":  types.ExchangeBgt,
		"market":    marketId,
		"side":      side,
		"price":     price,
		"qty":       quantity,
		"clientOid": req.ClientOid,
	}).Info("creating order")

	data, err := e.send(ctx, op, "POST", "/api/v2/spot/trade/place-order", nil, req, true, e.retryCreateOrder)
	if err != nil {
		if e.retryCreateOrder && isDuplicateClientOid(err) {
			return e.getOrderIdByClientOid(ctx, req.ClientOid)
		}
		return "", apierr.MarkAmbiguous(err)
	}
	return parseOrderId(data, op)
}

func (e *BgtExchange) getOrderIdByClientOid(ctx context.Context, clientOid string) (string, error) {
	const op = "getOrderInfo"
	query := url.Values{"clientOid": []string{clientOid}}
	data, err := e.send(ctx, op, "GET", "/api/v2/spot/trade/orderInfo", query, nil, true, true)
	if err != nil {
		return "", err
	}
	return parseOrderInfoId(data, op)
}

func isDuplicateClientOid(err error) bool {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindRejected {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "duplicate")
}

// CancelOrder returns false when Bitget no longer knows the order.
func (e *BgtExchange) CancelOrder(ctx context.Context, orderId string, marketId string) (bool, error) {
	req := cancelOrderRequest{
		Symbol:  marketId,
		OrderId: orderId,
	}
	_, err := e.send(ctx, "cancelOrder", "POST", "/api/v2/spot/trade/cancel-order", nil, req, true, false)
	if err != nil {
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) && apiErr.Kind == apierr.KindRejected && contains(notFoundErrorCodes, apiErr.Code) {
			log.WithFields(log.Fields{"exchange": types.ExchangeBgt, "order": orderId}).Info("order already gone")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ╔═════════════╗
//     Account
// ╚═════════════╝

func (e *BgtExchange) GetBalanceInfo(ctx context.Context) (*types.BalanceInfo, error) {
	data, err := e.send(ctx, "getBalanceInfo", "GET", "/api/v2/spot/account/assets", nil, nil, true, true)
	if err != nil {
		return nil, err
	}
	return parseBalanceInfo(data)
}

func (e *BgtExchange) GetPercentageOfBuyOrderTakenForExchangeFee(ctx context.Context, marketId string) (decimal.Decimal, error) {
	if e.State() == types.AdapterReady && e.buyFee.Valid {
		return e.buyFee.Decimal, nil
	}
	return e.getTradeRate(ctx, marketId)
}

func (e *BgtExchange) GetPercentageOfSellOrderTakenForExchangeFee(ctx context.Context, marketId string) (decimal.Decimal, error) {
	if e.State() == types.AdapterReady && e.sellFee.Valid {
		return e.sellFee.Decimal, nil
	}
	return e.getTradeRate(ctx, marketId)
}

func (e *BgtExchange) getTradeRate(ctx context.Context, marketId string) (decimal.Decimal, error) {
	query := symbolQuery(marketId)
	query.Set("businessType", "spot")
	data, err := e.send(ctx, "getTradeRate", "GET", "/api/v2/common/trade-rate", query, nil, true, true)
	if err != nil {
		return decimal.Zero, err
	}
	return parseTakerFeeRate(data)
}

// ╔═════════════╗
//     Request
// ╚═════════════╝

func symbolQuery(marketId string) url.Values {
	return url.Values{"symbol": []string{marketId}}
}

// send executes one call and returns the envelope's data on code 00000.
func (e *BgtExchange) send(ctx context.Context, op string, method string, path string, query url.Values, body any, private bool, retryable bool) (json.RawMessage, error) {
	if e.State() != types.AdapterReady {
		return nil, apierr.New(apierr.KindNotInitialized, string(types.ExchangeBgt), op, "adapter is not initialized")
	}

	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var reqBody string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindRejected, string(types.ExchangeBgt), op, err)
		}
		reqBody = string(b)
	}
	headers := map[string]string{"locale": "en-US"}
	if err := e.sign(op, method, path, reqBody, private, headers); err != nil {
		return nil, err
	}

	res, err := e.transport.Do(ctx, http.Request{
		Method:    method,
		Url:       e.baseUrl + path,
		Body:      reqBody,
		Headers:   headers,
		Retryable: retryable,
	})
	if err != nil {
		return nil, apierr.WithOp(err, string(types.ExchangeBgt), op)
	}

	env, ok := parseEnvelope(res.Body)
	if res.IsSuccess() && ok && env.Code == successCode {
		return env.Data, nil
	}
	if res.IsSuccess() && !ok {
		return nil, malformed(op, "response is not a Bitget envelope")
	}
	return nil, classifyError(op, res, env, ok)
}

func (e *BgtExchange) sign(op string, method string, path string, body string, private bool, headers map[string]string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.signer == nil {
		return apierr.New(apierr.KindNotInitialized, string(types.ExchangeBgt), op, "adapter is closed")
	}
	if private {
		for k, v := range e.signer.Headers(method, path, body) {
			headers[k] = v
		}
	}
	return nil
}

func classifyError(op string, res *http.Response, env envelope, ok bool) error {
	apiErr := &apierr.Error{
		Kind:       apierr.KindRejected,
		Exchange:   string(types.ExchangeBgt),
		Op:         op,
		StatusCode: res.StatusCode,
		Code:       env.Code,
		Message:    env.Msg,
	}
	if !ok {
		apiErr.Message = res.Status
	}

	switch {
	case res.StatusCode == nethttp.StatusUnauthorized || res.StatusCode == nethttp.StatusForbidden || contains(authErrorCodes, env.Code):
		apiErr.Kind = apierr.KindAuthentication
	case res.StatusCode >= 500 && !ok:
		apiErr.Kind = apierr.KindNetwork
	}
	return apiErr
}

func contains(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
