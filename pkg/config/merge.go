package config

import "dario.cat/mergo"

// mergeQueue merges a user-supplied queue block onto the built-in defaults,
// user values taking precedence for any field they set.
func mergeQueue(user *QueueConfig) (*QueueConfig, error) {
	result := DefaultQueueConfig()
	if user == nil {
		return result, nil
	}
	if err := mergo.Merge(result, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return result, nil
}

// mergeRetention merges a user-supplied retention block onto the built-in
// defaults.
func mergeRetention(user *RetentionConfig) (*RetentionConfig, error) {
	result := DefaultRetentionConfig()
	if user == nil {
		return result, nil
	}
	if err := mergo.Merge(result, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return result, nil
}

// mergeMutex merges a user-supplied mutex block onto the built-in defaults.
func mergeMutex(user *MutexConfig) (*MutexConfig, error) {
	result := DefaultMutexConfig()
	if user == nil {
		return result, nil
	}
	if err := mergo.Merge(result, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return result, nil
}

// mergeSubmission merges a user-supplied submission block onto the built-in
// defaults.
func mergeSubmission(user *SubmissionConfig) (*SubmissionConfig, error) {
	result := DefaultSubmissionConfig()
	if user == nil {
		return result, nil
	}
	if err := mergo.Merge(result, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return result, nil
}
