package bedrock

const (
	// DefaultModel is the inference profile used when none is configured
	DefaultModel = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
)

type options struct {
	modelID      string
	region       string
	accessKeyID  string
	secretKey    string
	sessionToken string
	client       Invoker
}

// Option is a functional option for the Bedrock client.
type Option func(*options)

// WithModel sets the Bedrock model ID or inference profile.
func WithModel(modelID string) Option {
	return func(o *options) {
		if modelID != "" {
			o.modelID = modelID
		}
	}
}

// WithRegion sets the AWS region, AWS_REGION or the shared config is used when empty.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithStaticCredentials uses the provided access key instead of the
// default AWS credential chain.
func WithStaticCredentials(accessKeyID, secretKey, sessionToken string) Option {
	return func(o *options) {
		o.accessKeyID = accessKeyID
		o.secretKey = secretKey
		o.sessionToken = sessionToken
	}
}

// WithClient sets the runtime client, the one from the default AWS config is created when nil
func WithClient(client Invoker) Option {
	return func(o *options) {
		o.client = client
	}
}
