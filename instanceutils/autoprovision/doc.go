// Command autoprovision runs a provisioning script once per machine and
// uploads its logs to a blob store.
//
// The tool is started by the host agent with a handler settings file:
//
//	autoprovision --settings-file=/var/lib/waagent/config/0.settings --cert-dir=/var/lib/waagent [options]
//
// A run proceeds as follows:
//   - The settings are loaded and the protected part is decrypted with the
//     certificate matching the given thumbprint
//   - If the lock marker for the script URI exists the run stops here
//   - Dependencies and the script are downloaded into the work dir, retrying
//     each up to --download-attempts times and flushing DNS between attempts
//   - The sentinel config is written and the guide application installed when requested
//   - The lock marker is written and the script executed
//   - Log files in the work dir, including the agent's own transcript.log and
//     the script's script-output.log, are uploaded under assets/logs/
//
// The blobctl subcommand signs single blob uploads and downloads by hand:
//
//	autoprovision blobctl upload --account-name=acct --account-key=... assets/test.txt ./test.txt
package main
