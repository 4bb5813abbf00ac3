package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// BearerScheme prefixes the access token in the HTTP Authorization header.
const BearerScheme = "Bearer "
