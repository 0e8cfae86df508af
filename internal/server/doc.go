// Package server implements the HTTP API for the newscast audio service.
// It exposes session lifecycle and workflow endpoints, the voice catalog,
// artifact download and monitoring/management endpoints.
package server
