package bns

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"

	"xchg/config"
	"xchg/pkg/apierr"
	"xchg/pkg/http"
	"xchg/pkg/market"
	"xchg/pkg/order"
	"xchg/pkg/types"
	"xchg/pkg/utils"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseUrl = "https://api.binance.com"
	depthLimit     = 100
)

// ref: https://developers.binance.com/docs/binance-spot-api-docs/errors
var (
	authErrorCodes     = []int64{-1022, -2014, -2015}
	notFoundErrorCodes = []int64{-2011, -2013}
)

// BnsExchange trades Binance spot through the go-binance SDK. The SDK signs
// and sends the requests; the adapter supplies the HTTP client and wraps
// each call in the transport's retry policy.
type BnsExchange struct {
	// the sdk reads the secret while a call runs, so calls hold mu for reading
	// until they return
	mu        sync.RWMutex
	client    *binance.Client
	transport *http.Transport

	buyFee           decimal.NullDecimal
	sellFee          decimal.NullDecimal
	retryCreateOrder bool
	newClientOrderId func() string
}

type Option func(*options)

type options struct {
	client           *nethttp.Client
	newClientOrderId func() string
}

func WithHttpClient(client *nethttp.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

func WithClientOrderIdGenerator(fn func() string) Option {
	return func(o *options) {
		o.newClientOrderId = fn
	}
}

func New(exchgConfig *config.ExchangeConfig, opts ...Option) (*BnsExchange, error) {
	o := options{newClientOrderId: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}

	// (1) credentials
	creds, err := exchgConfig.Credentials()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInitialization, string(types.ExchangeBns), "init", err)
	}

	// (2) optional items
	e := &BnsExchange{
		retryCreateOrder: exchgConfig.OptionalBool(config.OptionalRetryCreateOrder),
		newClientOrderId: o.newClientOrderId,
	}
	for key, fee := range map[string]*decimal.NullDecimal{config.OptionalBuyFee: &e.buyFee, config.OptionalSellFee: &e.sellFee} {
		if v, ok := exchgConfig.OptionalItem(key); ok {
			f, err := utils.PercentToFraction(v)
			if err != nil {
				return nil, apierr.Wrap(apierr.KindInitialization, string(types.ExchangeBns), "init", err)
			}
			*fee = decimal.NewNullDecimal(f)
		}
	}

	// (3) transport and sdk client
	e.transport = http.NewTransport(o.client, exchgConfig.Network.RetryPolicy())
	e.client = binance.NewClient(creds.Key, creds.Secret)
	e.client.BaseURL = defaultBaseUrl
	if baseUrl, ok := exchgConfig.OptionalItem(config.OptionalBaseUrl); ok {
		e.client.BaseURL = strings.TrimSuffix(baseUrl, "/")
	}
	e.client.HTTPClient = e.transport.Client()
	return e, nil
}

func (e *BnsExchange) Name() types.ExchangeName {
	return types.ExchangeBns
}

func (e *BnsExchange) ImplName() string {
	return "Binance Spot"
}

func (e *BnsExchange) State() types.AdapterState {
	if e == nil {
		return types.AdapterUninitialized
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.client == nil || e.transport == nil {
		return types.AdapterUninitialized
	}
	return types.AdapterReady
}

// Close blocks until in-flight calls return, then drops the secret.
func (e *BnsExchange) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		e.client.SecretKey = ""
	}
	e.client = nil
}

// ╔═════════════╗
//     Market
// ╚═════════════╝

func (e *BnsExchange) GetMarketOrders(ctx context.Context, marketId string) (*market.MarketOrderBook, error) {
	const op = "getMarketOrders"
	var res *binance.DepthResponse
	err := e.call(ctx, op, true, func(ctx context.Context, client *binance.Client) (err error) {
		res, err = client.NewDepthService().Symbol(marketId).Limit(depthLimit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return parseOrderBook(marketId, res)
}

func (e *BnsExchange) GetLatestMarketPrice(ctx context.Context, marketId string) (decimal.Decimal, error) {
	const op = "getLatestMarketPrice"
	var res []*binance.BookTicker
	err := e.call(ctx, op, true, func(ctx context.Context, client *binance.Client) (err error) {
		res, err = client.NewListBookTickersService().Symbol(marketId).Do(ctx)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return parseBestBid(marketId, res)
}

// ╔═════════════╗
//      Order
// ╚═════════════╝

func (e *BnsExchange) GetYourOpenOrders(ctx context.Context, marketId string) ([]order.OpenOrder, error) {
	const op = "getYourOpenOrders"
	var res []*binance.Order
	err := e.call(ctx, op, true, func(ctx context.Context, client *binance.Client) (err error) {
		res, err = client.NewListOpenOrdersService().Symbol(marketId).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return parseOpenOrders(res)
}

// CreateOrder places a GTC limit order tagged with a fresh client order id.
// With retry-create-order enabled a retry that Binance rejects as a
// duplicate resolves the order placed by the earlier attempt.
func (e *BnsExchange) CreateOrder(ctx context.Context, marketId string, side types.OrderSide, quantity decimal.Decimal, price decimal.Decimal) (string, error) {
	const op = "createOrder"
	orderSide, err := convertOrderSide(side)
	if err != nil {
		return "", apierr.New(apierr.KindRejected, string(types.ExchangeBns), op, "%v", err)
	}
	tif, err := convertOrderTIF(types.OrderTIFGTC)
	if err != nil {
		return "", apierr.New(apierr.KindRejected, string(types.ExchangeBns), op, "%v", err)
	}
	clientOrderId := e.newClientOrderId()
	log.WithFields(log.Fields{
		"exchange":      types.ExchangeBns,
		"market":        marketId,
		"side":          side,
		"price":         price,
		"qty":           quantity,
		"clientOrderId": clientOrderId,
	}).Info("creating order")

	var res *binance.CreateOrderResponse
	err = e.call(ctx, op, e.retryCreateOrder, func(ctx context.Context, client *binance.Client) (err error) {
		res, err = client.NewCreateOrderService().
			Symbol(marketId).
			Side(orderSide).
			Type(binance.OrderTypeLimit).
			TimeInForce(tif).
			Quantity(utils.DecimalToStr(quantity)).
			Price(utils.DecimalToStr(price)).
			NewClientOrderID(clientOrderId).
			Do(ctx)
		return err
	})
	if err != nil {
		if e.retryCreateOrder && isDuplicateOrder(err) {
			return e.getOrderIdByClientOrderId(ctx, marketId, clientOrderId)
		}
		return "", apierr.MarkAmbiguous(err)
	}
	if res == nil || res.OrderID == 0 {
		return "", malformed(op, "missing required field 'orderId'")
	}
	return strconv.FormatInt(res.OrderID, 10), nil
}

func (e *BnsExchange) getOrderIdByClientOrderId(ctx context.Context, marketId string, clientOrderId string) (string, error) {
	const op = "getOrder"
	var res *binance.Order
	err := e.call(ctx, op, true, func(ctx context.Context, client *binance.Client) (err error) {
		res, err = client.NewGetOrderService().Symbol(marketId).OrigClientOrderID(clientOrderId).Do(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	if res == nil || res.OrderID == 0 {
		return "", malformed(op, "missing required field 'orderId'")
	}
	return strconv.FormatInt(res.OrderID, 10), nil
}

func isDuplicateOrder(err error) bool {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindRejected {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "duplicate")
}

// CancelOrder returns false when Binance no longer knows the order.
func (e *BnsExchange) CancelOrder(ctx context.Context, orderId string, marketId string) (bool, error) {
	const op = "cancelOrder"
	id, err := convertOrderId(orderId)
	if err != nil {
		return false, apierr.New(apierr.KindRejected, string(types.ExchangeBns), op, "%v", err)
	}
	err = e.call(ctx, op, false, func(ctx context.Context, client *binance.Client) error {
		_, err := client.NewCancelOrderService().Symbol(marketId).OrderID(id).Do(ctx)
		return err
	})
	if err != nil {
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) && apiErr.Kind == apierr.KindRejected && containsCode(notFoundErrorCodes, apiErr.Code) {
			log.WithFields(log.Fields{"exchange": types.ExchangeBns, "order": orderId}).Info("order already gone")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ╔═════════════╗
//     Account
// ╚═════════════╝

func (e *BnsExchange) GetBalanceInfo(ctx context.Context) (*types.BalanceInfo, error) {
	account, err := e.getAccount(ctx, "getBalanceInfo")
	if err != nil {
		return nil, err
	}
	return parseBalanceInfo(account)
}

func (e *BnsExchange) GetPercentageOfBuyOrderTakenForExchangeFee(ctx context.Context, marketId string) (decimal.Decimal, error) {
	if e.State() == types.AdapterReady && e.buyFee.Valid {
		return e.buyFee.Decimal, nil
	}
	return e.getTakerFee(ctx)
}

func (e *BnsExchange) GetPercentageOfSellOrderTakenForExchangeFee(ctx context.Context, marketId string) (decimal.Decimal, error) {
	if e.State() == types.AdapterReady && e.sellFee.Valid {
		return e.sellFee.Decimal, nil
	}
	return e.getTakerFee(ctx)
}

func (e *BnsExchange) getTakerFee(ctx context.Context) (decimal.Decimal, error) {
	account, err := e.getAccount(ctx, "getTradingFee")
	if err != nil {
		return decimal.Zero, err
	}
	return parseTakerFee(account)
}

func (e *BnsExchange) getAccount(ctx context.Context, op string) (*binance.Account, error) {
	var account *binance.Account
	err := e.call(ctx, op, true, func(ctx context.Context, client *binance.Client) (err error) {
		account, err = client.NewGetAccountService().Do(ctx)
		return err
	})
	return account, err
}

// ╔═════════════╗
//     Request
// ╚═════════════╝

// call runs one SDK request under the retry policy and maps whatever it
// fails with onto the apierr kinds.
func (e *BnsExchange) call(ctx context.Context, op string, retryable bool, fn func(ctx context.Context, client *binance.Client) error) error {
	if e == nil {
		return apierr.New(apierr.KindNotInitialized, string(types.ExchangeBns), op, "adapter is not initialized")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	client := e.client
	if client == nil || e.transport == nil {
		return apierr.New(apierr.KindNotInitialized, string(types.ExchangeBns), op, "adapter is not initialized")
	}
	err := e.transport.Retry(ctx, retryable, "bns "+op, func(ctx context.Context) error {
		return fn(ctx, client)
	})
	if err != nil {
		return classifyError(op, err)
	}
	return nil
}

func classifyError(op string, err error) error {
	var sdkErr *common.APIError
	if errors.As(err, &sdkErr) {
		apiErr := &apierr.Error{
			Kind:     apierr.KindRejected,
			Exchange: string(types.ExchangeBns),
			Op:       op,
			Code:     strconv.FormatInt(sdkErr.Code, 10),
			Message:  sdkErr.Message,
		}
		switch {
		case containsCode(authErrorCodes, apiErr.Code):
			apiErr.Kind = apierr.KindAuthentication
		case sdkErr.Code == 0 && sdkErr.Message == "":
			// error status without a Binance error body
			apiErr.Kind = apierr.KindNetwork
			apiErr.Code = ""
		}
		return apiErr
	}

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apierr.WithOp(err, string(types.ExchangeBns), op)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &apierr.Error{
			Kind:     apierr.KindMalformedResponse,
			Exchange: string(types.ExchangeBns),
			Op:       op,
			Message:  "fail to decode response",
			Err:      err,
		}
	}
	return apierr.Wrap(apierr.KindNetwork, string(types.ExchangeBns), op, err)
}

func containsCode(codes []int64, code string) bool {
	c, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return false
	}
	for _, known := range codes {
		if known == c {
			return true
		}
	}
	return false
}
