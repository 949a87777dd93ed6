package version

// Value is overridden at release time via -ldflags "-X auditctl/internal/version.Value=vX.Y.Z".
var Value = "dev"
