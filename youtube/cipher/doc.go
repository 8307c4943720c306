/*
Package cipher recovers playable stream URLs from the obfuscated transforms
embedded in a player script.

The player script defines two transforms the package must reproduce: one that
descrambles a per-stream signature token, and one that computes the
throttle-bypass "n" token. Both are defined only inside minified,
machine-generated JavaScript whose shape drifts across deployments, so the
package treats the script as an adversarial external grammar: it recognizes
known structural shapes and fails loudly on anything else. It is not a
JavaScript engine.

# Pipeline

 1. Locate. Structural regex probes find the decipher function, the helper
    object holding the primitive operations, and the n-transform function.
    Probes only find start offsets; full bodies are extracted with a
    brace-balanced scanner (ExtractBlock), because regular expressions cannot
    match nested braces.
 2. Classify. Each helper member body is matched against an ordered table of
    structural matchers and mapped to a primitive kind: reverse, splice
    (drop-prefix) or swap. Unmatched members are left out of the table and
    only become an error if the decipher program calls them.
 3. Compile. The decipher body's helper calls are scanned in source order
    into a Program of Ops. The n-transform body is compiled against a
    maintained idiom catalog into an NProgram; unrecognized idioms abort.
 4. Execute. ApplySignature and ApplyN run the compiled programs. Both are
    pure; the n interpreter additionally runs under a hard step budget
    because its program derives from untrusted text.

# Errors

All failures carry a structured *Error with a code:

  - PATTERN_DRIFT: a structural probe found no match; the obfuscation shape
    changed and the matcher tables need updating. Details name the probe.
  - UNSUPPORTED_OPERATION: the decipher program calls a helper whose body
    matched no known primitive. Details name the key. Never skipped: a
    skipped call yields a syntactically valid but unusable URL.
  - UNBALANCED_BLOCK: malformed or truncated script text.
  - EVALUATION_TIMEOUT: the n execution budget was exceeded. Retry only
    against a freshly fetched script.
  - JS_EXECUTION_FAILED: the opt-in fallback evaluator failed.

# Caching

Compilation happens once per script version. Cache is an explicit value owned
by the caller, keyed by script content hash (Fingerprint), with
construct-once-per-key semantics. A Cipher is immutable after construction
and safe for concurrent use across manifest entries.

# Fallback

WithJSFallback enables sandboxed general evaluators for scripts whose shape
outruns the structural tables: otto for the signature, goja for the
n-transform under a wall-clock interrupt. Neither VM is given host bindings.
The default is strict recognize-or-fail.
*/
package cipher
