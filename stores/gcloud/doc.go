//go:build !wasm
// +build !wasm

// Package gcloud provides a Google Cloud Datastore implementation of the
// sessionkit store interfaces. It is designed for deployment on Google Cloud
// Platform and supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: user accounts, keyed by user ID
//   - Account: sign-in accounts, keyed by provider:subject
//
// # Namespacing
//
// Pass a namespace when creating the store to isolate data between tenants:
//
//	store := gcloud.NewStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gcloud.NewStore(client, "") // default namespace
//	svc, err := sessionkit.New(cfg, store.WithContext(ctx))
package gcloud
