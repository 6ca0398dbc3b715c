/*
Package perch holds a number of application level constants and shared
resources for the perch measurement archive service.
*/
package perch

// BuildRevision stores the commit in the git repository at build time and is
// specified with -ldflags at build time.
var BuildRevision = ""

const (
	// AuthHeader and APIKeyHeader carry the ingestion credential. A
	// request may present either a bearer-scheme Authorization header or
	// the API key header; the values are checked against the same
	// provisioned token.
	AuthHeader         = "Authorization"
	BearerSchemePrefix = "Bearer "
	APIKeyHeader       = "X-Api-Key"

	// TokenEnvVar is the environment variable read for the ingestion
	// credential when no configuration artifact supplies one.
	TokenEnvVar = "PERCH_BEARER_TOKEN"

	// TokenOutputKey prefixes the single line the provisioning command
	// prints for scripted capture of the effective token.
	TokenOutputKey = "PERCH_BEARER_TOKEN"

	StatsCacheIngest = "ingest"
)
