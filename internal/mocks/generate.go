package mocks

//go:generate mockgen -destination=jobs_mock.go -package=mocks thumbforge-backend/internal/jobs AssetStore,EventPublisher,IdentityResolver,Provider,Store
