// Copyright 2026 retailops. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

/*
Package sheetsync publishes order and inventory records from a remote JSON API
to worksheets in a shared Google spreadsheet.

sheetsync is a batch job: each run fetches the configured endpoints, coerces
the configured columns, clears the target worksheets and rewrites them from a
fixed anchor cell, then exits. It can be run from the command line but is
really intended to be run from cron (or resident, via the --schedule option)
to keep the spreadsheet current.

sheetsync supports the following commands:

  - run, to fetch the API endpoints and publish the results to the spreadsheet
  - version, to display the current version
*/
package sheetsync
