package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var client = http.Client{Timeout: 10 * time.Second}

// apiError is the body the node sends back on failure.
type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// call sends the request to the node and prints the JSON answer.
func call(w io.Writer, method string, url string, body any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var ae apiError
		if err := json.Unmarshal(data, &ae); err != nil || ae.Error == "" {
			return fmt.Errorf("%s: %s", resp.Status, string(data))
		}
		if len(ae.Fields) > 0 {
			return fmt.Errorf("%s: %s %v", resp.Status, ae.Error, ae.Fields)
		}
		return fmt.Errorf("%s: %s", resp.Status, ae.Error)
	}

	if resp.StatusCode == http.StatusNoContent {
		fmt.Fprintln(w, "nothing found")
		return nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(w, out.String())

	return nil
}
