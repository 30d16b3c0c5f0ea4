package assets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderConfig_MinIOConfig(t *testing.T) {
	r2Account := strings.Repeat("ab", 16)

	tests := []struct {
		name         string
		cfg          ProviderConfig
		wantEndpoint string
		wantRegion   string
		wantSSL      bool
		wantErr      bool
	}{
		{
			name:         "minio",
			cfg:          ProviderConfig{Provider: ProviderMinIO, Endpoint: "localhost:9000", Bucket: "assets"},
			wantEndpoint: "localhost:9000",
		},
		{
			name:    "minio without endpoint",
			cfg:     ProviderConfig{Provider: ProviderMinIO, Bucket: "assets"},
			wantErr: true,
		},
		{
			name:         "aws default region",
			cfg:          ProviderConfig{Provider: ProviderAWS, Bucket: "assets"},
			wantEndpoint: "s3.amazonaws.com",
			wantRegion:   "us-east-1",
			wantSSL:      true,
		},
		{
			name:         "aws regional",
			cfg:          ProviderConfig{Provider: ProviderAWS, Region: "eu-central-1", Bucket: "assets"},
			wantEndpoint: "s3.eu-central-1.amazonaws.com",
			wantRegion:   "eu-central-1",
			wantSSL:      true,
		},
		{
			name:    "aws unknown region",
			cfg:     ProviderConfig{Provider: ProviderAWS, Region: "mars-1"},
			wantErr: true,
		},
		{
			name:         "r2",
			cfg:          ProviderConfig{Provider: ProviderR2, AccountID: r2Account, Bucket: "assets"},
			wantEndpoint: r2Account + ".r2.cloudflarestorage.com",
			wantRegion:   "auto",
			wantSSL:      true,
		},
		{
			name:    "r2 bad account",
			cfg:     ProviderConfig{Provider: ProviderR2, AccountID: "xyz"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     ProviderConfig{Provider: "gcs"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.MinIOConfig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEndpoint, got.Endpoint)
			assert.Equal(t, tt.wantRegion, got.Region)
			assert.Equal(t, tt.wantSSL, got.UseSSL)
			assert.Equal(t, tt.cfg.Bucket, got.Bucket)
		})
	}
}

func TestSupportedAWSRegions(t *testing.T) {
	regions := SupportedAWSRegions()
	assert.Contains(t, regions, "us-east-1")
	assert.IsIncreasing(t, regions)
}
