package assets

import (
	"fmt"
	"sort"
	"strings"
)

// Provider names an S3-compatible storage vendor.
type Provider string

const (
	ProviderMinIO Provider = "minio"
	ProviderAWS   Provider = "aws"
	ProviderR2    Provider = "r2"
)

// Regional AWS S3 endpoints.
var awsEndpoints = map[string]string{
	"us-east-1":      "s3.amazonaws.com",
	"us-east-2":      "s3.us-east-2.amazonaws.com",
	"us-west-1":      "s3.us-west-1.amazonaws.com",
	"us-west-2":      "s3.us-west-2.amazonaws.com",
	"eu-west-1":      "s3.eu-west-1.amazonaws.com",
	"eu-west-2":      "s3.eu-west-2.amazonaws.com",
	"eu-central-1":   "s3.eu-central-1.amazonaws.com",
	"eu-north-1":     "s3.eu-north-1.amazonaws.com",
	"ap-northeast-1": "s3.ap-northeast-1.amazonaws.com",
	"ap-southeast-1": "s3.ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "s3.ap-southeast-2.amazonaws.com",
	"ap-south-1":     "s3.ap-south-1.amazonaws.com",
	"ca-central-1":   "s3.ca-central-1.amazonaws.com",
	"sa-east-1":      "s3.sa-east-1.amazonaws.com",
	"me-south-1":     "s3.me-south-1.amazonaws.com",
	"af-south-1":     "s3.af-south-1.amazonaws.com",
}

// ProviderConfig is the asset storage section of the configuration.
type ProviderConfig struct {
	Provider      Provider `yaml:"provider"`
	Endpoint      string   `yaml:"endpoint"`   // minio only
	Region        string   `yaml:"region"`     // aws only, default us-east-1
	AccountID     string   `yaml:"account_id"` // r2 only
	Bucket        string   `yaml:"bucket"`
	AccessKey     string   `yaml:"access_key"`
	SecretKey     string   `yaml:"secret_key"`
	UseSSL        bool     `yaml:"use_ssl"`
	PublicBaseURL string   `yaml:"public_base_url"`
}

// MinIOConfig resolves the provider's endpoint and returns minio-go settings.
func (p *ProviderConfig) MinIOConfig() (*MinIOConfig, error) {
	cfg := &MinIOConfig{
		Bucket:        p.Bucket,
		AccessKey:     p.AccessKey,
		SecretKey:     p.SecretKey,
		UseSSL:        p.UseSSL,
		PublicBaseURL: p.PublicBaseURL,
	}

	switch p.Provider {
	case ProviderMinIO, "":
		if p.Endpoint == "" {
			return nil, fmt.Errorf("minio endpoint is required")
		}
		cfg.Endpoint = p.Endpoint
		cfg.Region = p.Region
	case ProviderAWS:
		region := p.Region
		if region == "" {
			region = "us-east-1"
		}
		endpoint, err := AWSEndpointForRegion(region)
		if err != nil {
			return nil, err
		}
		cfg.Endpoint = endpoint
		cfg.Region = region
		cfg.UseSSL = true
	case ProviderR2:
		if !IsValidR2AccountID(p.AccountID) {
			return nil, fmt.Errorf("invalid R2 account id %q", p.AccountID)
		}
		cfg.Endpoint = R2EndpointForAccount(p.AccountID)
		cfg.Region = "auto"
		cfg.UseSSL = true
	default:
		return nil, fmt.Errorf("unknown storage provider %q", p.Provider)
	}
	return cfg, nil
}

// AWSEndpointForRegion returns the S3 endpoint of an AWS region.
func AWSEndpointForRegion(region string) (string, error) {
	endpoint, ok := awsEndpoints[region]
	if !ok {
		return "", fmt.Errorf("unknown AWS region: %s", region)
	}
	return endpoint, nil
}

// SupportedAWSRegions returns the known AWS regions, sorted.
func SupportedAWSRegions() []string {
	regions := make([]string, 0, len(awsEndpoints))
	for region := range awsEndpoints {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// R2EndpointForAccount returns the Cloudflare R2 endpoint of an account.
func R2EndpointForAccount(accountID string) string {
	return fmt.Sprintf("%s.r2.cloudflarestorage.com", accountID)
}

// IsValidR2AccountID reports whether accountID is 32 hex characters.
func IsValidR2AccountID(accountID string) bool {
	if len(accountID) != 32 {
		return false
	}
	for _, c := range accountID {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
