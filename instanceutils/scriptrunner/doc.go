// Package scriptrunner executes the downloaded provisioning script.
//
// Scripts ending in .sh are interpreted in-process with mvdan.cc/sh, so no
// system shell is required. Scripts ending in .ps1 are handed to the
// PowerShell host. Any other file is executed directly. Output of every
// script is appended to script-output.log in the work dir, which is uploaded
// together with the other logs.
package scriptrunner
