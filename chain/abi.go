// Package chain - data registry contract access layer
package chain

// RegistryABIJSON ABI of the data registry contract surface used by this SDK
const RegistryABIJSON = `[
  {"type":"function","name":"userNonce","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"userPermissionIdsLength","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"userPermissionIdsAt","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"permissions","stateMutability":"view","inputs":[{"name":"permissionId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"id","type":"uint256"},{"name":"grantor","type":"address"},{"name":"grantee","type":"address"},{"name":"nonce","type":"uint256"},{"name":"grant","type":"string"},{"name":"operation","type":"string"},{"name":"parameters","type":"string"},{"name":"fileIds","type":"uint256[]"},{"name":"startBlock","type":"uint256"},{"name":"endBlock","type":"uint256"},{"name":"active","type":"bool"}]}]},
  {"type":"function","name":"userServerIdsLength","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"userServerIdsAt","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"servers","stateMutability":"view","inputs":[{"name":"serverId","type":"address"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"id","type":"address"},{"name":"url","type":"string"},{"name":"owner","type":"address"},{"name":"publicKey","type":"string"},{"name":"trustedAt","type":"uint256"}]}]},
  {"type":"function","name":"schemas","stateMutability":"view","inputs":[{"name":"schemaId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"id","type":"uint256"},{"name":"name","type":"string"},{"name":"definitionUrl","type":"string"}]}]},
  {"type":"function","name":"refiners","stateMutability":"view","inputs":[{"name":"refinerId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"id","type":"uint256"},{"name":"dlpId","type":"uint256"},{"name":"schemaId","type":"uint256"},{"name":"instructionUrl","type":"string"},{"name":"owner","type":"address"}]}]},
  {"type":"function","name":"addPermission","stateMutability":"nonpayable","inputs":[{"name":"grantee","type":"address"},{"name":"grant","type":"string"},{"name":"fileIds","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"revokePermission","stateMutability":"nonpayable","inputs":[{"name":"permissionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"trustServer","stateMutability":"nonpayable","inputs":[{"name":"serverId","type":"address"},{"name":"serverUrl","type":"string"}],"outputs":[]},
  {"type":"function","name":"untrustServer","stateMutability":"nonpayable","inputs":[{"name":"serverId","type":"address"}],"outputs":[]},
  {"type":"function","name":"addAndTrustServer","stateMutability":"nonpayable","inputs":[{"name":"serverId","type":"address"},{"name":"serverUrl","type":"string"},{"name":"serverPublicKey","type":"string"}],"outputs":[]},
  {"type":"function","name":"addServerWithFilesAndPermissions","stateMutability":"nonpayable","inputs":[{"name":"fileUrls","type":"string[]"},{"name":"schemaIds","type":"uint256[]"},{"name":"filePermissions","type":"tuple[][]","components":[{"name":"account","type":"address"},{"name":"encryptedKey","type":"string"}]},{"name":"serverAddress","type":"address"},{"name":"serverUrl","type":"string"},{"name":"serverPublicKey","type":"string"}],"outputs":[]},
  {"type":"function","name":"addFile","stateMutability":"nonpayable","inputs":[{"name":"url","type":"string"},{"name":"ownerAddress","type":"address"}],"outputs":[]},
  {"type":"function","name":"addFileWithPermissions","stateMutability":"nonpayable","inputs":[{"name":"url","type":"string"},{"name":"ownerAddress","type":"address"},{"name":"permissions","type":"tuple[]","components":[{"name":"account","type":"address"},{"name":"encryptedKey","type":"string"}]}],"outputs":[]},
  {"type":"event","name":"FileAdded","anonymous":false,"inputs":[{"name":"fileId","type":"uint256","indexed":true},{"name":"ownerAddress","type":"address","indexed":true},{"name":"url","type":"string","indexed":false}]},
  {"type":"event","name":"PermissionGranted","anonymous":false,"inputs":[{"name":"permissionId","type":"uint256","indexed":true},{"name":"grantor","type":"address","indexed":true},{"name":"grant","type":"string","indexed":false}]}
]`

// multicallABIJSON ABI of the Multicall3 surface used for batched reads
const multicallABIJSON = `[
  {"type":"function","name":"tryAggregate","stateMutability":"payable","inputs":[{"name":"requireSuccess","type":"bool"},{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"callData","type":"bytes"}]}],"outputs":[{"name":"returnData","type":"tuple[]","components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]}
]`
