// Command omniarchive manages versioned archives in an object store.
//
// Configuration is read from flags, OMNIARCHIVE_* environment variables
// and ~/.omniarchive.yaml, in that order of precedence:
//
//	backend: s3
//	bucket: backups
//	timezone: UTC
//	store:
//	  region: eu-west-1
//	  endpoint: http://localhost:9000
//	  use_path_style: "true"
//
// Examples:
//
//	omniarchive put nightly dump.sql
//	omniarchive get nightly --logical-date 20240101 > dump.sql
//	omniarchive retention nightly --days 30 --copies 7
//	omniarchive scratch nightly --metrics-textfile /var/lib/node_exporter/omniarchive.prom
package main

import (
	"fmt"
	"os"

	"github.com/grokify/omniarchive"
	_ "github.com/grokify/omniarchive/backend/file"
	_ "github.com/grokify/omniarchive/backend/memory"
	_ "github.com/grokify/omniarchive/backend/s3"
	_ "github.com/grokify/omniarchive/backend/sftp"
)

func main() {
	if err := newRootCmd(omniarchive.Open).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
