// Package redis stores import task state in Redis so that status polls can
// be served by any API instance. Expiry is delegated to Redis key TTLs.
package redis
