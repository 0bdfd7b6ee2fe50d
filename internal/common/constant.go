package common

// UntitledTitle is shown for records created without a title.
const UntitledTitle = "(untitled)"

// KeyNamespace prefixes every key written to the local store. The version
// suffix changes whenever the stored layout does.
const KeyNamespace = "storyline/v3"
