package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/exchange/trader/pkg/xerrors"
)

const defaultTimeout = 5 * time.Second

// RestConnector 通过内部 HTTP 接口对接交易所下单网关。
// 传输故障与 5xx 返回可重试错误，4xx 业务拒绝返回不可重试错误。
type RestConnector struct {
	baseURL       string
	internalToken string
	httpClient    *http.Client
}

// NewRestConnector 创建连接器
func NewRestConnector(baseURL, internalToken string) *RestConnector {
	return &RestConnector{
		baseURL:       strings.TrimRight(baseURL, "/"),
		internalToken: internalToken,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type submitResponse struct {
	ExchangeOrderID string `json:"exchangeOrderId"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// SubmitOrder 提交订单
func (c *RestConnector) SubmitOrder(ctx context.Context, req *SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInternal, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.internalToken != "" {
		httpReq.Header.Set("X-Internal-Token", c.internalToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", xerrors.Newf(xerrors.CodeSubmitFailed, "submit order: %v", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	var payload submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", xerrors.Newf(xerrors.CodeSubmitFailed, "decode submit response: %v", err)
	}
	if payload.ExchangeOrderID == "" {
		return "", xerrors.New(xerrors.CodeSubmitFailed, "submit response missing exchangeOrderId")
	}
	return payload.ExchangeOrderID, nil
}

// CancelOrder 撤单
func (c *RestConnector) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	url := fmt.Sprintf("%s/orders/%s", c.baseURL, exchangeOrderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInternal, err)
	}
	if c.internalToken != "" {
		httpReq.Header.Set("X-Internal-Token", c.internalToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return xerrors.Newf(xerrors.CodeSubmitFailed, "cancel order: %v", err)
	}
	defer resp.Body.Close()

	return classifyStatus(resp)
}

// OpenOrders 查询挂单
func (c *RestConnector) OpenOrders(ctx context.Context, symbol string) ([]string, error) {
	url := c.baseURL + "/orders"
	if symbol != "" {
		url += "?symbol=" + symbol
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInternal, err)
	}
	if c.internalToken != "" {
		httpReq.Header.Set("X-Internal-Token", c.internalToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, xerrors.Newf(xerrors.CodeSubmitFailed, "list orders: %v", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var payload struct {
		Orders []string `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, xerrors.Newf(xerrors.CodeSubmitFailed, "decode orders response: %v", err)
	}
	return payload.Orders, nil
}

// classifyStatus 按状态码区分可重试故障与业务拒绝
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return xerrors.New(xerrors.CodeSystemBusy, "rate limited by exchange")
	case resp.StatusCode >= 500:
		return xerrors.Newf(xerrors.CodeUnavailable, "exchange unavailable: %d", resp.StatusCode)
	default:
		// 业务拒绝，附带交易所返回的消息
		msg := readErrorMessage(resp.Body)
		return xerrors.Newf(xerrors.CodeOrderRejected, "exchange rejected (%d): %s", resp.StatusCode, msg)
	}
}

func readErrorMessage(r io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&payload); err != nil || payload.Message == "" {
		return "unknown error"
	}
	return payload.Message
}
