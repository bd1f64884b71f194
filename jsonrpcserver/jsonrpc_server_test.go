package jsonrpcserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestHandler_ServeHTTP(t *testing.T) {
	var (
		errorArg = -1
		errorOut = errors.New("custom error") //nolint:goerr113
		codedArg = -2
	)
	handlerMethod := func(ctx context.Context, arg1 int) (dummyStruct, error) {
		switch arg1 {
		case errorArg:
			return dummyStruct{}, errorOut
		case codedArg:
			return dummyStruct{}, &Error{Code: CodeInvalidParams, Message: "bad arg"}
		}
		return dummyStruct{arg1}, nil
	}

	handler, err := NewHandler(map[string]interface{}{
		"function": handlerMethod,
	})
	require.NoError(t, err)

	testCases := map[string]struct {
		requestBody      string
		expectedResponse string
	}{
		"success": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"result":{"field":1}}`,
		},
		"error": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[-1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"custom error"}}`,
		},
		"coded error": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[-2]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad arg"}}`,
		},
		"params before method": {
			requestBody:      `{"params":[3],"method":"function","id":69,"jsonrpc":"2.0"}`,
			expectedResponse: `{"jsonrpc":"2.0","id":69,"result":{"field":3}}`,
		},
		"invalid json": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1]`,
			expectedResponse: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"unexpected EOF"}}`,
		},
		"invalid id": {
			requestBody:      `{"jsonrpc":"2.0","id":{},"method":"function","params":[1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":{},"error":{"code":-32700,"message":"invalid id type"}}`,
		},
		"method not found": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"not_found","params":[1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`,
		},
		"invalid params": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1,2]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"too much arguments"}}`,
		},
		"invalid params type": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":["1"]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"json: cannot unmarshal string into Go value of type int"}}`,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			body := bytes.NewReader([]byte(testCase.requestBody))
			request, err := http.NewRequest(http.MethodPost, "/", body)
			require.NoError(t, err)

			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, request)
			require.Equal(t, http.StatusOK, rr.Code)

			require.JSONEq(t, testCase.expectedResponse, rr.Body.String())
		})
	}
}

func TestHandler_SignatureVerifier(t *testing.T) {
	signer := common.HexToAddress("0x2222222222222222222222222222222222222222")
	errBadSignature := errors.New("invalid signature provided") //nolint:goerr113
	requestBody := `{"params":[],"method":"whoami","id":69,"jsonrpc":"2.0"}`

	verifier := func(header string, body []byte) (common.Address, error) {
		require.Equal(t, requestBody, string(body))
		if header != "good" {
			return common.Address{}, errBadSignature
		}
		return signer, nil
	}
	handler, err := NewHandler(Methods{
		"whoami": func(ctx context.Context) (common.Address, error) {
			return GetSigner(ctx), nil
		},
	}, WithSignatureVerifier(verifier))
	require.NoError(t, err)

	testCases := map[string]struct {
		header           string
		expectedResponse string
	}{
		"valid": {
			header:           "good",
			expectedResponse: `{"jsonrpc":"2.0","id":69,"result":"0x2222222222222222222222222222222222222222"}`,
		},
		"invalid": {
			header:           "bad",
			expectedResponse: `{"jsonrpc":"2.0","id":69,"error":{"code":-32600,"message":"invalid signature provided"}}`,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			request, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(requestBody)))
			require.NoError(t, err)
			request.Header.Set(SignatureHeader, testCase.header)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, request)
			require.JSONEq(t, testCase.expectedResponse, rr.Body.String())
		})
	}
}

func TestGetSignerWithoutVerifier(t *testing.T) {
	require.Equal(t, common.Address{}, GetSigner(context.Background()))
}
