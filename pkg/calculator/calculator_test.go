package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL)
	require.NoError(t, err)
	return c
}

func TestCalculate_SendsExactBodyAndDecodesResult(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calculate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		_, _ = w.Write([]byte(`{"base_tariff":"5%","effective_tariff":"5%","duty_payable":25000,"ai_assisted":false}`))
	})

	res, err := c.Calculate(context.Background(), Request{Exporter: 1, Importer: 9, Category: 1, DeclaredValue: 500000, Condition: 1})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"exporter":       float64(1),
		"importer":       float64(9),
		"category":       float64(1),
		"declared_value": float64(500000),
		"condition":      float64(1),
	}, got)
	assert.Equal(t, &Result{BaseTariff: "5%", EffectiveTariff: "5%", DutyPayable: 25000}, res)
}

func TestCalculate_EndpointErrorMessage(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid exporter country ID"}`))
	})

	_, err := c.Calculate(context.Background(), Request{})
	var ee *EndpointError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, http.StatusBadRequest, ee.Status)
	assert.Equal(t, "Invalid exporter country ID", UserMessage(err))
}

func TestCalculate_EndpointErrorWithoutMessage(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := c.Calculate(context.Background(), Request{})
	assert.Equal(t, "Server error 502", UserMessage(err))
}

func TestCalculate_SchemaViolation(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base_tariff":5,"effective_tariff":"5%","duty_payable":1,"ai_assisted":false}`))
	})

	_, err := c.Calculate(context.Background(), Request{})
	var ee *EndpointError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, unexpectedResponse, ee.Message)
}

func TestCalculate_UndecodableSuccessBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := c.Calculate(context.Background(), Request{})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ConnectivityMessage, UserMessage(err))
}

func TestCalculate_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close()
	c, err := New(ts.URL)
	require.NoError(t, err)

	_, err = c.Calculate(context.Background(), Request{})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ConnectivityMessage, UserMessage(err))
}

func TestUserMessage_Wrapped(t *testing.T) {
	err := errors.Join(errors.New("ctx"), &EndpointError{Status: 500, Message: "boom"})
	assert.Equal(t, "boom", UserMessage(err))
}
