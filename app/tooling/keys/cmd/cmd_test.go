package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func Test_GenerateAndPubkey(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"generate", "-p", dir, "-k", "alice"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Should be able to generate a key: %s", err)
	}

	generated := strings.Fields(out.String())
	if len(generated) != 2 || !strings.HasSuffix(generated[1], "alice.ecdsa") {
		t.Fatalf("Should print the public key and path, got %q.", out.String())
	}

	rootCmd.SetArgs([]string{"generate", "-p", dir, "-k", "alice"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("Should refuse to overwrite a key file.")
	}

	out.Reset()
	rootCmd.SetArgs([]string{"pubkey", "-p", dir, "-k", "alice"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Should be able to print the public key: %s", err)
	}
	if !strings.Contains(out.String(), generated[0]) {
		t.Fatalf("Should print the generated public key, got %q.", out.String())
	}
}

func Test_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"total_blocks":3}`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"counterparty has the greater key and initiates"}`))
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := call(&out, http.MethodGet, srv.URL+"/ok", nil); err != nil || !strings.Contains(out.String(), `"total_blocks": 3`) {
		t.Fatalf("Should print the indented answer, got %q %v.", out.String(), err)
	}

	out.Reset()
	if err := call(&out, http.MethodGet, srv.URL+"/empty", nil); err != nil || !strings.Contains(out.String(), "nothing found") {
		t.Fatalf("Should report an empty answer, got %q %v.", out.String(), err)
	}

	err := call(&out, http.MethodPost, srv.URL+"/sign", map[string]int{"up": 1})
	if err == nil || !strings.Contains(err.Error(), "greater key") {
		t.Fatalf("Should surface the node's error, got %v.", err)
	}
}
