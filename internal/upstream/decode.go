package upstream

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/prok20/faulty-server-poller/internal/run"
)

// decodeOutcome maps a response body to an Outcome. status is only used to
// describe bodies that match neither shape.
func decodeOutcome(status int, body []byte) run.Outcome {
	if !gjson.ValidBytes(body) {
		return run.Err(fmt.Sprintf("unexpected response: status %d", status))
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return run.Err(fmt.Sprintf("unexpected response: status %d", status))
	}

	if value := doc.Get("value"); value.Type == gjson.Number {
		if n, err := strconv.ParseUint(value.Raw, 10, 32); err == nil {
			return run.Ok(uint32(n))
		}
	}
	if msg := doc.Get("error"); msg.Type == gjson.String {
		return run.Err(msg.String())
	}
	return run.Err(fmt.Sprintf("unexpected response: status %d", status))
}
