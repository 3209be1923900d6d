// Package paramstore reads deployment configuration from the AWS SSM
// Parameter Store. Parameter values are secrets, only names are logged.
package paramstore

import (
	"context"
	"strings"
	"unicode"

	"github.com/Skyrin/go-deploy/e"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

const (
	ECode040101 = e.Code0401 + "01"
	ECode040102 = e.Code0401 + "02"
	ECode040103 = e.Code0401 + "03"
)

// Parameter a decrypted parameter
type Parameter struct {
	Name  string // fully qualified, i.e. /app/prod/DBHOST
	Value string
}

// String never includes the value
func (p *Parameter) String() string {
	return p.Name
}

// Client the subset of the SSM API used by the provider
type Client interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput,
		optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// Provider fetches parameters by path prefix
type Provider struct {
	client Client
}

// NewProvider initializes a new provider with the SSM client
func NewProvider(client Client) (p *Provider) {
	return &Provider{
		client: client,
	}
}

// NewProviderFromConfig initializes a new provider from an AWS config
func NewProviderFromConfig(cfg aws.Config) (p *Provider) {
	return NewProvider(ssm.NewFromConfig(cfg))
}

// GetByPath returns all parameters under the path, recursively and
// decrypted, in the order the service returns them. A path without any
// parameter is an error.
func (p *Provider) GetByPath(ctx context.Context, path string) (pList []*Parameter, err error) {
	in := &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	}

	paginator := ssm.NewGetParametersByPathPaginator(p.client, in)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, e.W(err, ECode040101, path)
		}

		for _, param := range out.Parameters {
			pList = append(pList, &Parameter{
				Name:  aws.ToString(param.Name),
				Value: aws.ToString(param.Value),
			})
		}
	}

	if len(pList) == 0 {
		return nil, e.WWM(nil, ECode040102, e.MsgParametersNotFound, path)
	}

	log.Info().Msgf("fetched %d parameters from %s: %v", len(pList), path, Names(pList))

	return pList, nil
}

// Names returns the parameter names
func Names(pList []*Parameter) (names []string) {
	names = make([]string, 0, len(pList))
	for _, p := range pList {
		names = append(names, p.Name)
	}
	return names
}

// EnvKey converts a parameter name to an environment variable name: the last
// path segment, upper cased, with anything but letters and digits replaced
// by '_'. i.e. /app/prod/db-host becomes DB_HOST
func EnvKey(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return unicode.ToUpper(r)
		default:
			return '_'
		}
	}, name)
}

// ToEnv maps the parameters to environment variables. Later parameters win
// if two names map to the same key, the key collision is logged.
func ToEnv(pList []*Parameter) (env map[string]string) {
	env = make(map[string]string, len(pList))
	for _, p := range pList {
		k := EnvKey(p.Name)
		if _, ok := env[k]; ok {
			log.Warn().Msgf("[%s] parameter %s overrides %s", ECode040103, p.Name, k)
		}
		env[k] = p.Value
	}
	return env
}

// Overlay returns base with the values of over applied on top
func Overlay(base, over map[string]string) (env map[string]string) {
	env = make(map[string]string, len(base)+len(over))
	for k, v := range base {
		env[k] = v
	}
	for k, v := range over {
		env[k] = v
	}
	return env
}

// Environ converts os.Environ style KEY=VALUE pairs to a map
func Environ(pairs []string) (env map[string]string) {
	env = make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env
}
