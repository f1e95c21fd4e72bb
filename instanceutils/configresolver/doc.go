// Package configresolver loads the provisioning settings handed to the agent
// by the host.
//
// The settings file carries plaintext public settings and an optional
// protected blob. The protected blob is base64 encoded PKCS#7 enveloped data
// addressed to a certificate installed on the machine and identified by its
// thumbprint; it holds the storage account credential.
//
// # Settings file
//
//	{
//	  "runtimeSettings": [{
//	    "handlerSettings": {
//	      "publicSettings": {"scriptFileUri": "https://.../setup.sh", "dependencyFileUris": []},
//	      "protectedSettings": "MIIB...",
//	      "protectedSettingsCertThumbprint": "3F2A..."
//	    }
//	  }]
//	}
//
// Only the first runtime settings entry is used. Any failure while reading,
// decrypting or validating is reported wrapped in interfaces.ErrConfigLoad.
package configresolver
