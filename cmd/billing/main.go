/*
main.go - Application entry point

PURPOSE:
  Starts the billing CLI. Every subcommand shares configuration (BILLING_*
  environment, optional .env), a zap logger and a SQLite store opened in
  the root command's pre-run hook.

COMMANDS:
  serve           HTTP API with graceful shutdown
  next-number     Suggested next invoice number
  preview         Aggregate uninvoiced time without persisting
  create-invoice  Bill uninvoiced time for a client and range
  statement       Client account statement
  seed            Load a demo scenario

EXAMPLES:
  # Load demo data, then run the API on it
  billing seed --scenario consulting-quarter --db="./data/billing.db"
  billing serve --db="./data/billing.db"

  # Preview and bill March for client 1
  billing preview --client 1 --from 2025-03-01 --to 2025-03-31
  billing create-invoice --client 1 --from 2025-03-01 --to 2025-03-31 \
      --number 1004 --date 2025-03-31 --due 2025-04-30

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

func main() {
	Execute()
}
