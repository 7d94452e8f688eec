//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of the sessionkit store
// interfaces. It supports any database that GORM supports (PostgreSQL, MySQL,
// SQLite, etc.) and is suitable for deployments wanting relational storage.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: user accounts
//   - accounts: sign-in accounts (oauth subjects and password hashes)
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	if err := gormstore.AutoMigrate(db); err != nil {
//	    log.Fatal(err)
//	}
//	store := gormstore.NewStore(db)
//	svc, err := sessionkit.New(cfg, store)
package gorm
