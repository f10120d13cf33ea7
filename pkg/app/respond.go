package app

import (
	"io"
	"net/http"
	"strconv"

	"github.com/Suhaibinator/SLayer/pkg/codec"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/Suhaibinator/SLayer/pkg/status"
	"github.com/pkg/errors"
)

// respond writes the response accumulated on c after the pipeline completed.
func (a *Application) respond(c *httpctx.Context) error {
	if !c.Respond || !c.Writable() {
		return nil
	}

	res := c.Response
	code := res.Status()

	if status.IsEmpty(code) {
		res.SetBody(nil)
		return res.Send(nil)
	}

	if c.Method() == http.MethodHead {
		if !res.Has("Content-Length") {
			if n, ok := res.Length(); ok {
				res.SetLength(n)
			}
		}
		return res.Send(nil)
	}

	body := res.Body()
	if body == nil {
		if res.ExplicitNullBody() {
			res.Remove("Content-Type")
			res.Remove("Transfer-Encoding")
			res.SetLength(0)
			return res.Send(nil)
		}
		msg := res.Message()
		if c.Request.Raw().ProtoMajor >= 2 || msg == "" {
			msg = strconv.Itoa(code)
		}
		res.SetType("text")
		res.SetLength(int64(len(msg)))
		return res.Send([]byte(msg))
	}

	switch b := body.(type) {
	case string:
		return res.Send([]byte(b))
	case []byte:
		return res.Send(b)
	case io.Reader:
		return res.SendReader(b)
	}

	data, err := codec.ForBody(body).Marshal(body)
	if err != nil {
		return errors.Wrap(err, "serializing response body")
	}
	res.SetLength(int64(len(data)))
	return res.Send(data)
}
