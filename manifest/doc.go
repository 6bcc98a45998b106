// Package manifest loads HCL composition manifests: which component
// binaries to register, how each import slot is bound and, optionally,
// a default entry point to invoke.
//
// A manifest looks like:
//
//	component "adder" {
//	  path = "adder.wasm"
//	}
//
//	component "app" {
//	  path = "app.wasm"
//
//	  bind {
//	    import   = "add"
//	    provider = "adder"
//	    export   = "add"
//	  }
//
//	  bind_host {
//	    import   = "log"
//	    function = "host-log"
//	  }
//	}
//
//	invoke {
//	  instance = "app"
//	  export   = "main"
//	  args     = ["hello", 42]
//	}
package manifest
