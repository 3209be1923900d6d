// Package kafka_aws_ec2 provides the MSK IAM SASL mechanism for hosts
// running with an AWS role.
package kafka_aws_ec2

import (
	"context"

	"github.com/Skyrin/go-deploy/e"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/aws_msk_iam_v2"
)

const (
	ECode060301 = e.Code0603 + "01"
	ECode060302 = e.Code0603 + "02"
)

// SASLMechanismConfig configuration options for NewSASLMechanism
type SASLMechanismConfig struct {
	Region string
	// EC2Role uses the instance role credentials only, instead of the
	// default credential chain
	EC2Role bool
}

// NewSASLMechanism returns a new MSK IAM SASL mechanism
func NewSASLMechanism(ctx context.Context, c SASLMechanismConfig) (sm sasl.Mechanism, err error) {
	if c.Region == "" {
		return nil, e.N(ECode060301, "region not specified")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.Region))
	if err != nil {
		return nil, e.W(err, ECode060302)
	}
	if c.EC2Role {
		cfg.Credentials = aws.NewCredentialsCache(ec2rolecreds.New())
	}

	return aws_msk_iam_v2.NewMechanism(cfg), nil
}
