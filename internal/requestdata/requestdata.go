package requestdata

import (
  "context"
  "github.com/google/uuid"
)

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
  return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
  val := ctx.Value(requestDataKey)
  if rd, ok := val.(*RequestData); ok {
    return rd
  }
  return nil
}

// Origin says how the request reached us, as established by the auth
// middleware. Classification into a turn context happens later and treats
// anything it does not recognize as a public share.
type Origin string

const (
  OriginOwnerSession Origin = "owner_session"
  OriginWidgetEmbed  Origin = "widget_embed"
  OriginShareLink    Origin = "share_link"
  OriginUnknown      Origin = "unknown"
)

type RequestData struct {
  TokenString     string
  UserID          uuid.UUID
  TwinID          uuid.UUID
  TenantID        string
  Origin          Origin
  TrainingSession bool
  OwnerOfTwin     bool
}
