// ABOUTME: Package documentation for configuration loading
// ABOUTME: Describes the YAML format and environment variable expansion

// Package config loads threadloom's YAML configuration.
//
// Configuration is a single YAML file with environment variable expansion:
// any ${VAR_NAME} in the file is replaced with the variable's value before
// parsing, so secrets like access tokens and API keys can stay out of the
// file itself.
//
// Example:
//
//	matrix:
//	  homeserver: https://matrix.example.org
//	  user_id: "@loom:example.org"
//	  access_token: ${MATRIX_ACCESS_TOKEN}
//	  crypto_db_path: /var/lib/threadloom/crypto.db
//	  pickle_key: ${MATRIX_PICKLE_KEY}
//
//	anthropic:
//	  api_key: ${ANTHROPIC_API_KEY}
//	  model: claude-sonnet-4-5
//	  max_tokens: 8192
//
//	conversation:
//	  mention_token: "@loom"
//	  system_prompt: "You are a helpful assistant. Today is {{currentDateTime}}."
//	  inline_limit: 3000
//	  request_timeout: 5m
//
//	cache:
//	  path: /var/lib/threadloom/attachments.db
//
//	dedupe:
//	  ttl: 10m
//	  max_size: 5000
//
//	logging:
//	  level: info
//	  format: json
//
// Duration fields accept Go duration strings ("30s", "5m"). Load validates
// required fields and fails fast on the first problem it finds.
package config
