package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/flagx"
)

// parseFlags overlays the short command-line flags:
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-d string   PostgreSQL DSN ("" runs on the in-process store)
//	-r string   Redis URL
//	-s string   JWT HMAC secret key
//	-t int      token validity, minutes
//	-l string   ledger API URL
//	-p string   POAP contract id (address.name)
//	-v string   voting contract id (address.name)
//	-i int      reconcile interval, seconds (0 disables)
//	-n string   notify backend (memory|redis)
//
// Only these flags are picked out of os.Args, so other components can
// parse theirs from the same command line.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-s", "-t", "-l", "-p", "-v", "-i", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidity.Minutes()), "token validity (in minutes)")

	fs.StringVar(&config.LedgerAPIURL, "l", config.LedgerAPIURL, "ledger API URL")
	fs.StringVar(&config.POAPContract, "p", config.POAPContract, "POAP contract id")
	fs.StringVar(&config.VotingContract, "v", config.VotingContract, "voting contract id")

	reconcileInterval := fs.Int("i", int(config.ReconcileInterval.Seconds()), "reconcile interval (in seconds)")

	fs.StringVar(&config.NotifyBackend, "n", config.NotifyBackend, "post notification backend")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidity = time.Duration(*tokenValidity) * time.Minute
	config.ReconcileInterval = time.Duration(*reconcileInterval) * time.Second
}
