package types

// Version is the application version, overwritten at build time with -ldflags
var Version = "dev"

// AppName is used in user agents, branch prefixes and idempotency markers
const AppName = "reposync"
