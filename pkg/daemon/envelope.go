package daemon

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Envelope is the JSON wrapper every local API response comes in:
//
//	{"code": 0, "msg": "success", "data": {...}}
//
// Payload fields are read with gjson paths such as "data.id".
type Envelope struct {
	Code int64
	Msg  string
	raw  []byte
}

// ParseEnvelope decodes a response body. It fails only when the body is not a JSON object.
func ParseEnvelope(body []byte) (*Envelope, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, errors.New("response is not a JSON object")
	}
	return &Envelope{
		Code: root.Get("code").Int(),
		Msg:  root.Get("msg").String(),
		raw:  body,
	}, nil
}

// OK reports whether the daemon flagged the call as successful.
// The daemon is inconsistent about casing ("Success" vs "success").
func (e *Envelope) OK() bool {
	return e != nil && strings.EqualFold(strings.TrimSpace(e.Msg), "success")
}

// Get returns the value at a gjson path, e.g. "data.ws.selenium".
func (e *Envelope) Get(path string) gjson.Result {
	if e == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.raw, path)
}

// Raw returns the undecoded response body.
func (e *Envelope) Raw() []byte {
	if e == nil {
		return nil
	}
	return e.raw
}

func (e *Envelope) String() string {
	if e == nil {
		return "<nil envelope>"
	}
	return string(e.raw)
}
