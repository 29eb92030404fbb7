// Package postgres provides PostgreSQL implementations of the store
// interfaces for users, podcasts and episodes. Task records live in
// Redis, not here; see internal/platform/redisstore.
package postgres
