package lib

var (
	// Set at build time, i.e.:
	// go build -ldflags "-X github.com/Skyrin/go-deploy.Sha=$(git rev-parse HEAD) -X github.com/Skyrin/go-deploy.Build=42" ./cmd/deploy-migrate

	// Sha the commit sha
	Sha string
	// Build the build number
	Build string
)

// Version returns the commit sha and build number the binary was built from
func Version() (string, string) {
	return Sha, Build
}
