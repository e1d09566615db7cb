package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mekongcart/checkout-service/internal/config"
)

// Gateway response codes used in return and IPN payloads. The transport is
// always HTTP 200 on the IPN path; only the code carries the outcome.
const (
	CodeSuccess        = "00"
	CodeOrderNotFound  = "01"
	CodeAlreadyUpdated = "02"
	CodeInvalidAmount  = "04"
	CodeChecksumFailed = "97"
)

const (
	ParamSecureHash     = "vnp_SecureHash"
	ParamSecureHashType = "vnp_SecureHashType"
	ParamTxnRef         = "vnp_TxnRef"
	ParamAmount         = "vnp_Amount"
	ParamResponseCode   = "vnp_ResponseCode"
)

const createDateLayout = "20060102150405"

type Client struct {
	tmnCode    string
	hashSecret string
	payURL     string
	returnURL  string
	now        func() time.Time
}

func NewClient(cfg config.VNPayConfig) *Client {
	return &Client{
		tmnCode:    cfg.TmnCode,
		hashSecret: cfg.HashSecret,
		payURL:     cfg.PayURL,
		returnURL:  cfg.ReturnURL,
		now:        time.Now,
	}
}

type PaymentURLRequest struct {
	OrderID   string
	Amount    int64 // VND
	OrderInfo string
	IPAddr    string
	Locale    string
	BankCode  string
}

// CreatePaymentURL builds the signed redirect URL that sends the customer to
// the gateway's payment page. The local order id rides along as vnp_TxnRef
// and comes back unchanged on both callbacks.
func (c *Client) CreatePaymentURL(req PaymentURLRequest) string {
	locale := req.Locale
	if locale == "" {
		locale = "vn"
	}

	params := map[string]string{
		"vnp_Version":   "2.1.0",
		"vnp_Command":   "pay",
		"vnp_TmnCode":   c.tmnCode,
		"vnp_Locale":    locale,
		"vnp_CurrCode":  "VND",
		ParamTxnRef:     req.OrderID,
		"vnp_OrderInfo": req.OrderInfo,
		"vnp_OrderType": "other",
		// The gateway expects the amount multiplied by 100.
		ParamAmount:      strconv.FormatInt(req.Amount*100, 10),
		"vnp_ReturnUrl":  c.returnURL,
		"vnp_IpAddr":     req.IPAddr,
		"vnp_CreateDate": c.now().Format(createDateLayout),
	}
	if req.BankCode != "" {
		params["vnp_BankCode"] = req.BankCode
	}

	signData := canonicalize(params)
	secureHash := c.sign(signData)

	return c.payURL + "?" + signData + "&" + ParamSecureHash + "=" + secureHash
}

// SecureHash computes the signature over the callback parameters, excluding
// the signature fields themselves.
func (c *Client) SecureHash(params map[string]string) string {
	return c.sign(canonicalize(params))
}

// VerifyCallback recomputes the signature from the callback parameters and
// compares it with the vnp_SecureHash the gateway sent. Pure function of its
// inputs; a missing hash simply fails the comparison.
func (c *Client) VerifyCallback(params map[string]string) bool {
	received := params[ParamSecureHash]
	if received == "" {
		return false
	}
	expected := c.SecureHash(params)
	return hmac.Equal([]byte(strings.ToLower(received)), []byte(expected))
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.hashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalize renders params as query-escaped key=value pairs joined by "&",
// sorted lexicographically by key. The gateway does not guarantee parameter
// order, so a deterministic ordering is what makes the signature
// reproducible. Signature fields are skipped.
func canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == ParamSecureHash || key == ParamSecureHashType {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[key]))
	}

	return b.String()
}
