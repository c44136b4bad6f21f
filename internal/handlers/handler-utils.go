package handlers

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/dtos"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"github.com/xenn00/teamchat/internal/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type HandlerFunc func(w http.ResponseWriter, r *http.Request) *app_error.AppError

func WrapHandler(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			ev := log.Warn()
			if err.Code >= http.StatusInternalServerError {
				ev = log.Error().Err(err.Unwrap())
			}
			ev.Str("request_id", RequestID(r)).Str("kind", string(err.Kind)).Msg(err.Message)

			writeJSON(w, err.Code, dtos.Response[any]{
				Message: "Error occur",
				Errors: &dtos.ErrorResponse{
					Code:    err.Code,
					Kind:    string(err.Kind),
					Field:   err.Field,
					Message: err.Message,
				},
				RequestID: RequestID(r),
			})
		}
	}
}

func CreateResponse[T any](message string, data T, requestId string) dtos.Response[T] {
	return dtos.Response[T]{
		Message:   message,
		Data:      data,
		RequestID: requestId,
	}
}

// Respond writes a 200 envelope tagged with the request id.
func Respond[T any](w http.ResponseWriter, r *http.Request, message string, data T) {
	writeJSON(w, http.StatusOK, CreateResponse(message, data, RequestID(r)))
}

func RequestID(r *http.Request) string {
	reqID, ok := r.Context().Value(middleware.RequestIdKey).(string)
	if !ok {
		return "unknown"
	}
	return reqID
}
