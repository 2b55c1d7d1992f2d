package testutil

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"aidchain/pkg/requestcontext"
)

// WithCaller marks the request as authenticated by addr, the way the auth
// middleware does after validating a bearer token.
func WithCaller(req *http.Request, addr common.Address) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), addr))
}
