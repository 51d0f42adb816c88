package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jhj/kis_autotrader/internal/domain"
)

const (
	RealBaseURL  = "https://openapi.koreainvestment.com:9443"
	PaperBaseURL = "https://openapivts.koreainvestment.com:29443"

	pathToken        = "/oauth2/tokenP"
	pathAskingPrice  = "/uapi/domestic-stock/v1/quotations/inquire-asking-price-exp-ccn"
	pathPrice        = "/uapi/domestic-stock/v1/quotations/inquire-price"
	pathDailyChart   = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	pathMinuteChart  = "/uapi/domestic-stock/v1/quotations/inquire-time-itemchartprice"
	pathStockInfo    = "/uapi/domestic-stock/v1/quotations/search-stock-info"
	pathOrderable    = "/uapi/domestic-stock/v1/trading/inquire-psbl-order"
	pathBalance      = "/uapi/domestic-stock/v1/trading/inquire-balance"
	pathOrderCash    = "/uapi/domestic-stock/v1/trading/order-cash"
	pathCancel       = "/uapi/domestic-stock/v1/trading/order-rvsecncl"
	pathDailyConclud = "/uapi/domestic-stock/v1/trading/inquire-daily-ccld"

	maxDailyPages  = 5
	maxMinutePages = 8
	maxBodyBytes   = 4 << 20
)

var kst = time.FixedZone("KST", 9*60*60)

type Config struct {
	AppKey    string
	AppSecret string
	BaseURL   string
	AccountNo string

	RequestTimeout        time.Duration
	MinInterval           time.Duration
	Retry                 RetryPolicy
	FallbackAfterTimeouts int
	RecoveryProbeInterval time.Duration
}

// Observer receives per-request telemetry.
type Observer interface {
	ObserveRequest(endpoint string, elapsed time.Duration, err error)
	FallbackChanged(active bool)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, time.Duration, error) {}
func (nopObserver) FallbackChanged(bool)                        {}

type Option func(*KISClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *KISClient) { c.http = hc }
}

func WithObserver(o Observer) Option {
	return func(c *KISClient) {
		if o != nil {
			c.observer = o
		}
	}
}

type placement struct {
	symbol string
	side   domain.Side
	qty    int64
	price  int64
	orgNo  string
	at     time.Time
}

// KISClient implements domain.Broker against the Korea Investment &
// Securities open API.
type KISClient struct {
	cfg      Config
	paper    bool
	cano     string
	prdt     string
	http     *http.Client
	limiter  *rate.Limiter
	tokens   *TokenManager
	fallback *fallbackState
	observer Observer
	log      *zap.Logger

	mu       sync.Mutex
	names    map[string]string
	holdings map[string]domain.Position
	placed   map[string]placement
	timeNow  func() time.Time
}

func NewKISClient(cfg Config, store domain.TokenStore, log *zap.Logger, opts ...Option) *KISClient {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = RealBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.RecoveryProbeInterval <= 0 {
		cfg.RecoveryProbeInterval = 5 * time.Minute
	}
	cano, prdt, _ := strings.Cut(cfg.AccountNo, "-")

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	c := &KISClient{
		cfg:      cfg,
		paper:    strings.Contains(strings.ToLower(cfg.BaseURL), "vts"),
		cano:     cano,
		prdt:     prdt,
		http:     &http.Client{},
		limiter:  rate.NewLimiter(limit, 1),
		observer: nopObserver{},
		log:      log.With(zap.String("component", "kis")),
		names:    make(map[string]string),
		placed:   make(map[string]placement),
		timeNow:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = NewTokenManager(store, c.issueToken, c.log)
	c.fallback = newFallbackState(cfg.FallbackAfterTimeouts, cfg.RecoveryProbeInterval, func(active bool) {
		c.observer.FallbackChanged(active)
	})
	return c
}

func (c *KISClient) Paper() bool { return c.paper }

// trID maps a production transaction id to its paper-trading twin.
func (c *KISClient) trID(id string) string {
	if c.paper && strings.HasPrefix(id, "T") {
		return "V" + id[1:]
	}
	return id
}

func (c *KISClient) InFallback() bool { return c.fallback.Active() }

type request struct {
	method    string
	path      string
	trID      string
	query     url.Values
	body      any
	essential bool
	// unsafe requests are retried only when the broker refused them outright.
	unsafe bool
}

func (c *KISClient) call(ctx context.Context, r request) (gjson.Result, error) {
	name := path.Base(r.path)
	if !r.essential && c.fallback.Active() && !c.fallback.ProbeDue(c.timeNow()) {
		return gjson.Result{}, domain.ErrFallbackSkipped
	}

	start := c.timeNow()
	var out gjson.Result
	err := c.cfg.Retry.Do(ctx, func() error {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		res, err := c.send(ctx, r, token)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
				c.tokens.Invalidate()
			}
			if r.unsafe && !(errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = res
		return nil
	}, func(err error, wait time.Duration) {
		c.log.Warn("Retrying KIS request", zap.String("endpoint", name), zap.Duration("wait", wait), zap.Error(err))
	})
	c.observer.ObserveRequest(name, c.timeNow().Sub(start), err)

	switch {
	case err == nil || domain.HasCode(err, domain.CodeRejected):
		if c.fallback.RecordSuccess() {
			c.log.Info("Broker recovered, leaving fallback mode")
		}
	case IsTimeout(err) && ctx.Err() == nil:
		if c.fallback.RecordTimeout(c.timeNow()) {
			c.log.Error("Consecutive broker timeouts, entering fallback mode",
				zap.Int("threshold", c.fallback.threshold))
		}
	default:
		c.fallback.RecordFailure()
	}

	if err != nil {
		var te *domain.TradeError
		if errors.As(err, &te) {
			return out, err
		}
		return out, domain.WrapError(domain.CodeTransient, name+" failed", err)
	}
	return out, nil
}

func (c *KISClient) send(ctx context.Context, r request, token string) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	u := c.cfg.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encode %s: %w", r.path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(reqCtx, r.method, u, body)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)
	req.Header.Set("custtype", "P")
	if token != "" {
		req.Header.Set("authorization", "Bearer "+token)
	}
	if r.trID != "" {
		req.Header.Set("tr_id", r.trID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(raw, "msg1").String()
		if msg == "" {
			msg = truncate(string(raw), 200)
		}
		return gjson.Result{}, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%s: invalid json response", path.Base(r.path))
	}
	res := gjson.ParseBytes(raw)
	if rt := res.Get("rt_cd"); rt.Exists() && rt.String() != "0" {
		return res, domain.Errorf(domain.CodeRejected, "%s [%s] %s",
			path.Base(r.path), res.Get("msg_cd").String(), strings.TrimSpace(res.Get("msg1").String()))
	}
	return res, nil
}

func (c *KISClient) issueToken(ctx context.Context) (*domain.AccessToken, error) {
	res, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   pathToken,
		body: map[string]string{
			"grant_type": "client_credentials",
			"appkey":     c.cfg.AppKey,
			"appsecret":  c.cfg.AppSecret,
		},
	}, "")
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	access := res.Get("access_token").String()
	if access == "" {
		return nil, domain.Errorf(domain.CodeRejected, "issue token: %s", res.Get("error_description").String())
	}
	now := c.timeNow()
	ttl := time.Duration(res.Get("expires_in").Int()) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &domain.AccessToken{AccessToken: access, Expiry: now.Add(ttl), IssuedAt: now}, nil
}

func (c *KISClient) stockQuery(symbol string) url.Values {
	return url.Values{
		"fid_cond_mrkt_div_code": {"J"},
		"fid_input_iscd":         {symbol},
	}
}

func (c *KISClient) GetQuote(ctx context.Context, symbol string) (*domain.PriceQuote, error) {
	res, err := c.call(ctx, request{
		method: http.MethodGet, path: pathPrice, trID: "FHKST01010100",
		query: c.stockQuery(symbol), essential: true,
	})
	if err != nil {
		return nil, err
	}
	out := res.Get("output")
	q := &domain.PriceQuote{
		Symbol:     symbol,
		Current:    out.Get("stck_prpr").Int(),
		UpperLimit: out.Get("stck_mxpr").Int(),
		LowerLimit: out.Get("stck_llam").Int(),
		FetchedAt:  c.timeNow(),
	}

	book, err := c.call(ctx, request{
		method: http.MethodGet, path: pathAskingPrice, trID: "FHKST01010200",
		query: c.stockQuery(symbol), essential: true,
	})
	if err != nil {
		if q.Current <= 0 {
			return nil, err
		}
		c.log.Warn("Order book unavailable, using last price", zap.String("symbol", symbol), zap.Error(err))
		return q, nil
	}
	b := book.Get("output1")
	q.Ask = b.Get("askp1").Int()
	q.Bid = b.Get("bidp1").Int()
	q.AskSize = b.Get("askp_rsqn1").Int()
	q.BidSize = b.Get("bidp_rsqn1").Int()
	if q.HasBook() {
		q.Spread = q.Ask - q.Bid
	}
	if q.Current <= 0 && !q.HasBook() {
		return nil, fmt.Errorf("quote %s: %w", symbol, domain.ErrNoPrice)
	}
	return q, nil
}

func (c *KISClient) GetDailyCandles(ctx context.Context, symbol string, days int) ([]domain.Candle, error) {
	if days <= 0 {
		days = 252
	}
	end := c.timeNow().In(kst)
	seen := make(map[string]bool)
	var all []domain.Candle

	for page := 0; page < maxDailyPages && len(all) < days; page++ {
		query := c.stockQuery(symbol)
		query.Set("fid_input_date_1", end.AddDate(0, 0, -150).Format("20060102"))
		query.Set("fid_input_date_2", end.Format("20060102"))
		query.Set("fid_period_div_code", "D")
		query.Set("fid_org_adj_prc", "0")
		res, err := c.call(ctx, request{method: http.MethodGet, path: pathDailyChart, trID: "FHKST03010100", query: query})
		if err != nil {
			return nil, err
		}

		added := 0
		earliest := end
		for _, row := range res.Get("output2").Array() {
			d := row.Get("stck_bsop_date").String()
			if d == "" || seen[d] {
				continue
			}
			t, err := time.ParseInLocation("20060102", d, kst)
			if err != nil {
				continue
			}
			candle := domain.Candle{
				Time:   t,
				Open:   row.Get("stck_oprc").Float(),
				High:   row.Get("stck_hgpr").Float(),
				Low:    row.Get("stck_lwpr").Float(),
				Close:  row.Get("stck_clpr").Float(),
				Volume: row.Get("acml_vol").Float(),
			}
			if candle.Close <= 0 {
				continue
			}
			seen[d] = true
			all = append(all, candle)
			added++
			if t.Before(earliest) {
				earliest = t
			}
		}
		if added == 0 {
			break
		}
		end = earliest.AddDate(0, 0, -1)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	if len(all) > days {
		all = all[len(all)-days:]
	}
	return all, nil
}

func (c *KISClient) GetMinuteCandles(ctx context.Context, symbol string, window int) ([]domain.Candle, error) {
	if window <= 0 {
		window = 60
	}
	now := c.timeNow().In(kst)
	hour := now
	seen := make(map[string]bool)
	var all []domain.Candle

	pages := window/30 + 1
	if pages > maxMinutePages {
		pages = maxMinutePages
	}
	for page := 0; page < pages && len(all) < window; page++ {
		query := c.stockQuery(symbol)
		query.Set("fid_etc_cls_code", "")
		query.Set("fid_input_hour_1", hour.Format("150405"))
		query.Set("fid_pw_data_incu_yn", "Y")
		res, err := c.call(ctx, request{method: http.MethodGet, path: pathMinuteChart, trID: "FHKST03010200", query: query})
		if err != nil {
			return nil, err
		}

		added := 0
		earliest := hour
		for _, row := range res.Get("output2").Array() {
			key := row.Get("stck_bsop_date").String() + row.Get("stck_cntg_hour").String()
			if len(key) != 14 || seen[key] {
				continue
			}
			t, err := time.ParseInLocation("20060102150405", key, kst)
			if err != nil {
				continue
			}
			candle := domain.Candle{
				Time:   t,
				Open:   row.Get("stck_oprc").Float(),
				High:   row.Get("stck_hgpr").Float(),
				Low:    row.Get("stck_lwpr").Float(),
				Close:  row.Get("stck_prpr").Float(),
				Volume: row.Get("cntg_vol").Float(),
			}
			if candle.Close <= 0 {
				continue
			}
			seen[key] = true
			all = append(all, candle)
			added++
			if t.Before(earliest) {
				earliest = t
			}
		}
		if added == 0 {
			break
		}
		hour = earliest.Add(-time.Minute)
		if hour.Hour() < 9 {
			break
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	if len(all) > window {
		all = all[len(all)-window:]
	}
	return all, nil
}

func (c *KISClient) accountQuery() url.Values {
	return url.Values{"CANO": {c.cano}, "ACNT_PRDT_CD": {c.prdt}}
}

func (c *KISClient) GetAccountBalance(ctx context.Context) (*domain.AccountBalance, error) {
	query := c.accountQuery()
	query.Set("PDNO", "005930")
	query.Set("ORD_UNPR", "0")
	query.Set("ORD_DVSN", "01")
	query.Set("CMA_EVLU_AMT_ICLD_YN", "N")
	query.Set("OVRS_ICLD_YN", "N")
	res, err := c.call(ctx, request{
		method: http.MethodGet, path: pathOrderable, trID: c.trID("TTTC8908R"),
		query: query, essential: true,
	})
	if err != nil {
		return nil, err
	}
	return &domain.AccountBalance{AvailableCash: int64(res.Get("output.ord_psbl_cash").Float())}, nil
}

// GetHoldings serves the last snapshot while in fallback mode, except when a
// recovery probe is due.
func (c *KISClient) GetHoldings(ctx context.Context) (map[string]domain.Position, error) {
	if c.fallback.Active() && !c.fallback.ProbeDue(c.timeNow()) {
		if cached := c.cachedHoldings(); cached != nil {
			c.log.Debug("Serving holdings from cache", zap.Int("count", len(cached)))
			return cached, nil
		}
		return nil, domain.ErrFallbackSkipped
	}

	query := c.accountQuery()
	for k, v := range map[string]string{
		"AFHR_FLPR_YN":          "N",
		"OFL_YN":                "",
		"INQR_DVSN":             "02",
		"UNPR_DVSN":             "01",
		"FUND_STTL_ICLD_YN":     "N",
		"FNCG_AMT_AUTO_RDPT_YN": "N",
		"PRCS_DVSN":             "01",
		"CTX_AREA_FK100":        "",
		"CTX_AREA_NK100":        "",
	} {
		query.Set(k, v)
	}
	res, err := c.call(ctx, request{
		method: http.MethodGet, path: pathBalance, trID: c.trID("TTTC8434R"),
		query: query, essential: true,
	})
	if err != nil {
		if cached := c.cachedHoldings(); cached != nil && c.fallback.Active() {
			return cached, nil
		}
		return nil, err
	}

	out := make(map[string]domain.Position)
	for _, row := range res.Get("output1").Array() {
		qty := row.Get("hldg_qty").Int()
		symbol := row.Get("pdno").String()
		if qty <= 0 || symbol == "" {
			continue
		}
		out[symbol] = domain.Position{
			Symbol:              symbol,
			Name:                row.Get("prdt_name").String(),
			Quantity:            qty,
			AverageCost:         row.Get("pchs_avg_pric").Float(),
			LastKnownPrice:      row.Get("prpr").Int(),
			UnrealizedReturnPct: row.Get("evlu_pfls_rt").Float(),
			EvaluationAmount:    row.Get("evlu_amt").Int(),
			PurchaseAmount:      row.Get("pchs_amt").Int(),
		}
	}

	c.mu.Lock()
	c.holdings = make(map[string]domain.Position, len(out))
	for k, v := range out {
		c.holdings[k] = v
		if v.Name != "" {
			c.names[k] = v.Name
		}
	}
	c.mu.Unlock()
	return out, nil
}

func (c *KISClient) cachedHoldings() map[string]domain.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holdings == nil {
		return nil
	}
	out := make(map[string]domain.Position, len(c.holdings))
	for k, v := range c.holdings {
		out[k] = v
	}
	return out
}

// GetStockName is non-essential and is skipped in fallback mode.
func (c *KISClient) GetStockName(ctx context.Context, symbol string) (string, error) {
	c.mu.Lock()
	name, ok := c.names[symbol]
	c.mu.Unlock()
	if ok {
		return name, nil
	}
	res, err := c.call(ctx, request{
		method: http.MethodGet, path: pathStockInfo, trID: "CTPF1002R",
		query: url.Values{"PRDT_TYPE_CD": {"300"}, "PDNO": {symbol}},
	})
	if err != nil {
		return "", err
	}
	name = res.Get("output.prdt_abrv_name").String()
	if name == "" {
		name = res.Get("output.prdt_name").String()
	}
	if name == "" {
		return symbol, nil
	}
	c.mu.Lock()
	c.names[symbol] = name
	c.mu.Unlock()
	return name, nil
}

// PlaceOrder submits a cash order. A zero price is a market order.
func (c *KISClient) PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty int64, price int64) (*domain.OrderResult, error) {
	trID := "TTTC0802U"
	if side == domain.SideSell {
		trID = "TTTC0801U"
	}
	ordDvsn, unpr := "00", fmt.Sprintf("%d", price)
	if price <= 0 {
		ordDvsn, unpr = "01", "0"
	}
	res, err := c.call(ctx, request{
		method: http.MethodPost, path: pathOrderCash, trID: c.trID(trID),
		body: map[string]string{
			"CANO":         c.cano,
			"ACNT_PRDT_CD": c.prdt,
			"PDNO":         symbol,
			"ORD_DVSN":     ordDvsn,
			"ORD_QTY":      fmt.Sprintf("%d", qty),
			"ORD_UNPR":     unpr,
		},
		essential: true,
		unsafe:    true,
	})
	if err != nil {
		if domain.HasCode(err, domain.CodeRejected) {
			return &domain.OrderResult{Success: false, LimitPrice: price, Message: err.Error()}, err
		}
		return nil, err
	}

	orderID := firstString(res, "output.ODNO", "output.odno")
	if orderID == "" && price <= 0 {
		orderID = domain.MarketOrderID
	}
	if orderID != "" && orderID != domain.MarketOrderID {
		c.mu.Lock()
		c.placed[orderID] = placement{
			symbol: symbol, side: side, qty: qty, price: price,
			orgNo: firstString(res, "output.KRX_FWDG_ORD_ORGNO", "output.krx_fwdg_ord_orgno"),
			at:    c.timeNow(),
		}
		c.mu.Unlock()
	}
	c.log.Info("Order accepted",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int64("qty", qty),
		zap.Int64("price", price),
		zap.String("order_id", orderID))
	return &domain.OrderResult{Success: true, OrderID: orderID, LimitPrice: price, Message: res.Get("msg1").String()}, nil
}

// CancelOrder returns false without error when the broker refuses the cancel,
// e.g. because the order already filled.
func (c *KISClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	c.mu.Lock()
	p := c.placed[orderID]
	c.mu.Unlock()
	_, err := c.call(ctx, request{
		method: http.MethodPost, path: pathCancel, trID: c.trID("TTTC0803U"),
		body: map[string]string{
			"CANO":               c.cano,
			"ACNT_PRDT_CD":       c.prdt,
			"KRX_FWDG_ORD_ORGNO": p.orgNo,
			"ORGN_ODNO":          orderID,
			"ORD_DVSN":           "00",
			"RVSE_CNCL_DVSN_CD":  "02",
			"ORD_QTY":            "0",
			"ORD_UNPR":           "0",
			"QTY_ALL_ORD_YN":     "Y",
		},
		essential: true,
	})
	if err != nil {
		if domain.HasCode(err, domain.CodeRejected) {
			c.log.Warn("Cancel refused", zap.String("order_id", orderID), zap.Error(err))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *KISClient) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderTicket, error) {
	c.mu.Lock()
	p, known := c.placed[orderID]
	c.mu.Unlock()

	day := c.timeNow().In(kst).Format("20060102")
	query := c.accountQuery()
	for k, v := range map[string]string{
		"INQR_STRT_DT":    day,
		"INQR_END_DT":     day,
		"SLL_BUY_DVSN_CD": "00",
		"INQR_DVSN":       "01",
		"PDNO":            p.symbol,
		"CCLD_DVSN":       "00",
		"ORD_GNO_BRNO":    "",
		"ODNO":            orderID,
		"INQR_DVSN_3":     "00",
		"INQR_DVSN_1":     "",
		"CTX_AREA_FK100":  "",
		"CTX_AREA_NK100":  "",
	} {
		query.Set(k, v)
	}
	res, err := c.call(ctx, request{
		method: http.MethodGet, path: pathDailyConclud, trID: c.trID("TTTC8001R"),
		query: query, essential: true,
	})
	if err != nil {
		return nil, err
	}

	t := &domain.OrderTicket{OrderID: orderID, Status: domain.StatusPending}
	if known {
		t.Symbol, t.Side, t.SubmittedQty, t.LimitPrice, t.CreatedAt = p.symbol, p.side, p.qty, p.price, p.at
	}
	for _, row := range res.Get("output1").Array() {
		if row.Get("odno").String() != orderID {
			continue
		}
		t.Symbol = row.Get("pdno").String()
		if row.Get("sll_buy_dvsn_cd").String() == "01" {
			t.Side = domain.SideSell
		} else {
			t.Side = domain.SideBuy
		}
		t.SubmittedQty = row.Get("ord_qty").Int()
		t.FilledQty = row.Get("tot_ccld_qty").Int()
		t.LimitPrice = row.Get("ord_unpr").Int()
		if t.FilledQty > 0 {
			t.AvgFillPrice = row.Get("tot_ccld_amt").Float() / float64(t.FilledQty)
		}
		cancelled := row.Get("cncl_yn").String() == "Y"
		t.Status = domain.StatusFromFill(t.SubmittedQty, t.FilledQty, cancelled)
		if t.FilledQty == 0 && row.Get("rjct_qty").Int() > 0 {
			t.Status = domain.StatusRejected
		}
		break
	}

	if t.Status.Terminal() {
		c.mu.Lock()
		delete(c.placed, orderID)
		c.mu.Unlock()
	}
	return t, nil
}

func firstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := res.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
