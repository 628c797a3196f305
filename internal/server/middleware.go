package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/vvakame/bookgraph/internal/log"
)

const requestIDHeader = "X-Request-Id"

// requestIDMiddleware tags every request with an id and a logger carrying it.
// An id supplied by the client is reused.
func requestIDMiddleware(logger logr.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := log.WithLogger(r.Context(), logger.WithValues("requestID", requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type recoveryLogger struct {
	logger logr.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error(fmt.Errorf("%s", fmt.Sprint(v...)), "panic recovered")
}

var _ interface {
	graphql.HandlerExtension
	graphql.ResponseInterceptor
} = (*operationLogger)(nil)

// operationLogger logs each finished operation at V(1).
type operationLogger struct{}

func (*operationLogger) ExtensionName() string {
	return "OperationLogger"
}

func (*operationLogger) Validate(schema graphql.ExecutableSchema) error {
	return nil
}

func (*operationLogger) InterceptResponse(ctx context.Context, next graphql.ResponseHandler) *graphql.Response {
	if !graphql.HasOperationContext(ctx) {
		return next(ctx)
	}

	start := time.Now()
	resp := next(ctx)

	oc := graphql.GetOperationContext(ctx)
	var errCount int
	if resp != nil {
		errCount = len(resp.Errors)
	}
	log.FromContext(ctx).V(1).Info(
		"operation finished",
		"operationName", oc.OperationName,
		"duration", time.Since(start),
		"errors", errCount,
	)

	return resp
}
