package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
)

func TestClientsAreCached(t *testing.T) {
	c := NewClientsFromConfig(aws.Config{Region: "ap-northeast-1"}, "")

	assert.Same(t, c.CloudFront(), c.CloudFront())
	assert.Same(t, c.Lambda(), c.Lambda())
	assert.Same(t, c.S3("eu-west-1"), c.S3("eu-west-1"))
	assert.NotSame(t, c.S3("eu-west-1"), c.S3("us-east-1"))
	assert.Same(t, c.S3(""), c.S3("ap-northeast-1"))
}

func TestLambdaPinnedToEdgeRegion(t *testing.T) {
	c := NewClientsFromConfig(aws.Config{Region: "ap-northeast-1"}, "")
	assert.Equal(t, DefaultEdgeRegion, c.Lambda().Options().Region)
	assert.Equal(t, "eu-west-1", c.S3("eu-west-1").Options().Region)
}
