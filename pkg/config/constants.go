package config

const (
	EnvPrefix = "PREORDER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "PREORDER_APP_ENV"
	EnvPort     = "PREORDER_APP_PORT"
	EnvLogLevel = "PREORDER_LOG_LEVEL"

	EnvDBDSN  = "PREORDER_DB_DSN"
	EnvDBHost = "PREORDER_DB_HOST"
	EnvDBUser = "PREORDER_DB_USER"
	EnvDBName = "PREORDER_DB_NAME"

	EnvRedisURL = "PREORDER_REDIS_URL"

	EnvJWTSecret  = "PREORDER_JWT_SECRET"
	EnvJWTIssuer  = "PREORDER_JWT_ISSUER"
	EnvJWTExpMins = "PREORDER_JWT_EXPIRATION_MINUTES"

	EnvStripeAPIKey         = "PREORDER_STRIPE_API_KEY"
	EnvStripePublishableKey = "PREORDER_STRIPE_PUBLISHABLE_KEY"
	EnvStripeSigningSecret  = "PREORDER_STRIPE_WEBHOOK_SECRET"

	EnvOrdersTimezone     = "PREORDER_ORDERS_TIMEZONE"
	EnvOrdersCancelWindow = "PREORDER_ORDERS_CANCEL_WINDOW"
	EnvOrdersCurrency     = "PREORDER_ORDERS_CURRENCY"

	EnvGCPProjectID       = "PREORDER_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic  = "PREORDER_PUBSUB_ORDERS_TOPIC"
	EnvPubSubRefundsSub   = "PREORDER_PUBSUB_REFUNDS_SUBSCRIPTION"
	EnvOutboxBatchSize    = "PREORDER_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvRealtimeBufferSize = "PREORDER_REALTIME_BUFFER_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
