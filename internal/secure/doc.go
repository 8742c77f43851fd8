// Package secure keeps resolved secret values in encrypted memguard
// enclaves between resolution and process launch.
//
// Values are decrypted only while the child environment is being built:
//
//	env := secure.NewEnv()
//	defer env.Destroy()
//	env.Set("DB_PASSWORD", value)
//
//	environ, wipe, err := env.Environ(os.Environ())
//	if err != nil {
//	    return err
//	}
//	defer wipe()
//
// If mlock is unavailable, memguard falls back to ordinary memory; the
// enclave contents are still encrypted.
//
// It does NOT protect against an attacker with access to the running
// process, or against the child process leaking its own environment.
package secure
