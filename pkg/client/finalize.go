package client

import (
	"errors"
)

// finalize stamps the elapsed time on a successful response and turns
// upstream failures into an *APIError. Errors without a response pass
// through unchanged.
func (c *Client) finalize(req *Request, resp *Response, err error) (*Response, error) {
	if err != nil {
		var rerr *responseError
		if errors.As(err, &rerr) {
			return nil, newAPIError(req, rerr.resp)
		}
		return nil, err
	}

	resp.Elapsed = max(c.now().Sub(req.start), 0)
	resp.Request = req
	return resp, nil
}
