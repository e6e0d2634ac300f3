package config

const (
	storeBackendVar    = "STORE_BACKEND"
	settingsTableVar   = "SETTINGS_TABLE"
	auditTableVar      = "AUDIT_TABLE"
	databaseURLVar     = "DATABASE_URL"
	awsRegionVar       = "AWS_REGION"
	awsEndpointVar     = "AWS_ENDPOINT"
	awsAccessKeyVar    = "AWS_ACCESS_KEY_ID"
	awsSecretKeyVar    = "AWS_SECRET_ACCESS_KEY"
	awsSessionTokenVar = "AWS_SESSION_TOKEN"
)

const (
	StoreBackendMemory   = "memory"
	StoreBackendDynamoDB = "dynamodb"
	StoreBackendPostgres = "postgres"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetSettingsTable() string
	GetAuditTable() string
	GetDatabaseURL() string
	GetAWSRegion() string
	GetAWSEndpoint() string
	GetAWSCredentials() (accessKey, secretKey, sessionToken string)
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStoreBackend() string {
	return GetEnv(storeBackendVar, StoreBackendMemory)
}

func (Store) GetSettingsTable() string {
	return GetEnv(settingsTableVar, "settings")
}

func (Store) GetAuditTable() string {
	return GetEnv(auditTableVar, "audit")
}

func (Store) GetDatabaseURL() string {
	return GetEnv(databaseURLVar, "")
}

func (Store) GetAWSRegion() string {
	return GetEnv(awsRegionVar, "us-east-1")
}

// GetAWSEndpoint overrides the DynamoDB endpoint, e.g. for DynamoDB Local
func (Store) GetAWSEndpoint() string {
	return GetEnv(awsEndpointVar, "")
}

func (Store) GetAWSCredentials() (string, string, string) {
	return GetEnv(awsAccessKeyVar, ""), GetEnv(awsSecretKeyVar, ""), GetEnv(awsSessionTokenVar, "")
}
